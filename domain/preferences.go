package domain

// PreferenceState is an opt-in/opt-out marker on a category or channel.
type PreferenceState string

const (
	OptIn  PreferenceState = "opt_in"
	OptOut PreferenceState = "opt_out"
)

// PreferenceDocument is a read-only snapshot of a user's notification
// preferences as served by the notification platform. It is never mutated
// locally, only inspected before dispatching a notification.
type PreferenceDocument struct {
	Sections []PreferenceSection `json:"sections"`
}

type PreferenceSection struct {
	Name          string                  `json:"name,omitempty"`
	Subcategories []PreferenceSubcategory `json:"subcategories,omitempty"`
}

type PreferenceSubcategory struct {
	Name        string              `json:"name,omitempty"`
	Category    string              `json:"category,omitempty"`
	Description string              `json:"description,omitempty"`
	Preference  PreferenceState     `json:"preference,omitempty"`
	Channels    []ChannelPreference `json:"channels,omitempty"`
}

// ChannelPreference is the per-delivery-mechanism preference inside a
// subcategory (email, inbox, ...).
type ChannelPreference struct {
	Channel    string          `json:"channel"`
	Preference PreferenceState `json:"preference,omitempty"`
}
