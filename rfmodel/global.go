package rfmodel

import (
	"github.com/meshworks/radio-orchestrator/model"
)

// GlobalName is the pseudo-model name the platform-wide defaults are
// stored under in the configuration store. It is also the logical manager
// name carried in inter-server configuration pushes.
const GlobalName = "platform"

// DefaultControlDevice is the control-network device used for OTA and
// event-service traffic when nothing else is configured.
const DefaultControlDevice = "ctrl0"

// Platform-wide option ids referenced throughout the orchestrator.
const (
	OptionPlatformIDStart    = "platform_id_start"
	OptionNEMIDStart         = "nem_id_start"
	OptionOTAManagerDevice   = "otamanagerdevice"
	OptionOTAManagerGroup    = "otamanagergroup"
	OptionEventServiceDevice = "eventservicedevice"
	OptionEventServiceGroup  = "eventservicegroup"
)

// platformOptions is the ordered schema of the global pseudo-model. The
// starting platform id is run-scoped and never emitted into generated
// platform documents.
var platformOptions = []model.Option{
	{ID: OptionPlatformIDStart, Kind: model.OptionInt, Default: "1", Label: "Starting platform id"},
	{ID: OptionOTAManagerDevice, Kind: model.OptionString, Default: DefaultControlDevice, Label: "OTA manager device"},
	{ID: OptionOTAManagerGroup, Kind: model.OptionString, Default: "224.1.2.8:45702", Label: "OTA manager group"},
	{ID: "otamanagerchannelenable", Kind: model.OptionBool, Default: "1", Label: "OTA channel enable"},
	{ID: OptionEventServiceDevice, Kind: model.OptionString, Default: DefaultControlDevice, Label: "Event service device"},
	{ID: OptionEventServiceGroup, Kind: model.OptionString, Default: "224.1.2.8:45703", Label: "Event service group"},
	{ID: "eventservicettl", Kind: model.OptionInt, Default: "1", Label: "Event service TTL"},
	{ID: "controlportendpoint", Kind: model.OptionString, Default: "0.0.0.0:47000", Label: "Control port endpoint"},
	{ID: "stats.maxeventcountrows", Kind: model.OptionInt, Default: "0", Label: "Max event count rows"},
}

var nemOptions = []model.Option{
	{ID: OptionNEMIDStart, Kind: model.OptionInt, Default: "1", Label: "Starting NEM id"},
}

// GlobalOptions returns the full ordered option list of the global
// pseudo-model: platform attributes followed by NEM parameters.
func GlobalOptions() []model.Option {
	opts := make([]model.Option, 0, len(platformOptions)+len(nemOptions))
	opts = append(opts, platformOptions...)
	opts = append(opts, nemOptions...)
	return opts
}

// GlobalGroups describes the grouping of GlobalOptions.
func GlobalGroups() []model.OptionGroup {
	platLen := len(platformOptions)
	total := platLen + len(nemOptions)
	return []model.OptionGroup{
		{Name: "Platform Attributes", Start: 1, End: platLen},
		{Name: "NEM Parameters", Start: platLen + 1, End: total},
	}
}

// GlobalDefaults returns the id -> default map for the global pseudo-model.
func GlobalDefaults() map[string]string {
	return model.DefaultsOf(GlobalOptions())
}

// PlatformDocumentOptions returns the ordered option ids that belong in a
// generated platform document. The starting platform id is excluded: it is
// run-scoped allocation state, not daemon configuration.
func PlatformDocumentOptions() []model.Option {
	opts := make([]model.Option, 0, len(platformOptions)-1)
	for _, opt := range platformOptions {
		if opt.ID == OptionPlatformIDStart {
			continue
		}
		opts = append(opts, opt)
	}
	return opts
}
