package model

// OptionKind is the declared type of a configuration option value. Values
// are always carried as strings on the wire; the kind is schema metadata
// for validation and UI layers.
type OptionKind string

const (
	OptionBool   OptionKind = "bool"
	OptionInt    OptionKind = "int"
	OptionFloat  OptionKind = "float"
	OptionString OptionKind = "string"
)

// Option describes one named configuration option exposed by a radio model.
type Option struct {
	ID      string
	Kind    OptionKind
	Default string
	Label   string
}

// OptionGroup names a contiguous 1-based span of a model's option list,
// used to group related options.
type OptionGroup struct {
	Name  string
	Start int
	End   int
}

// DefaultsOf flattens an option list into an id -> default map.
func DefaultsOf(opts []Option) map[string]string {
	defaults := make(map[string]string, len(opts))
	for _, opt := range opts {
		defaults[opt.ID] = opt.Default
	}
	return defaults
}
