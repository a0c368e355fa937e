package rfmodel

import (
	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/model"
)

// universalPHYOptions are shared by every model that uses the universal
// PHY layer.
var universalPHYOptions = []model.Option{
	{ID: "subid", Kind: model.OptionInt, Default: "1", Label: "PHY subid"},
	{ID: "frequency", Kind: model.OptionInt, Default: "2347000000", Label: "Frequency (Hz)"},
	{ID: "bandwidth", Kind: model.OptionInt, Default: "1000000", Label: "Bandwidth (Hz)"},
	{ID: "propagationmodel", Kind: model.OptionString, Default: "2ray", Label: "Propagation model"},
	{ID: "noisemode", Kind: model.OptionString, Default: "none", Label: "Noise processing mode"},
	{ID: "systemnoisefigure", Kind: model.OptionFloat, Default: "4.0", Label: "System noise figure (dB)"},
	{ID: "txpower", Kind: model.OptionFloat, Default: "0.0", Label: "Transmit power (dBm)"},
}

func builtinModels(log logging.Logger) []core.Model {
	return []core.Model{
		newRFPipe(log),
		newIEEE80211abg(log),
		newCommEffect(log),
		newBypass(log),
		newTDMA(log),
	}
}

func newRFPipe(log logging.Logger) core.Model {
	return &baseModel{
		name:       "rfpipe",
		macLibrary: "rfpipemaclayer",
		phyLibrary: "emanephy",
		macOptions: []model.Option{
			{ID: "datarate", Kind: model.OptionInt, Default: "1000000", Label: "Data rate (bps)"},
			{ID: "delay", Kind: model.OptionFloat, Default: "0.0", Label: "Transmission delay (sec)"},
			{ID: "jitter", Kind: model.OptionFloat, Default: "0.0", Label: "Transmission jitter (sec)"},
			{ID: "enablepromiscuousmode", Kind: model.OptionBool, Default: "0", Label: "Promiscuous mode"},
			{ID: "flowcontrolenable", Kind: model.OptionBool, Default: "0", Label: "Flow control"},
			{ID: "pcrcurveuri", Kind: model.OptionString, Default: "", Label: "PCR curve URI"},
		},
		phyOptions: universalPHYOptions,
		log:        log,
	}
}

func newIEEE80211abg(log logging.Logger) core.Model {
	return &baseModel{
		name:       "ieee80211abg",
		macLibrary: "ieee80211abgmaclayer",
		phyLibrary: "emanephy",
		macOptions: []model.Option{
			{ID: "mode", Kind: model.OptionInt, Default: "0", Label: "802.11 mode"},
			{ID: "unicastrate", Kind: model.OptionInt, Default: "4", Label: "Unicast rate index"},
			{ID: "multicastrate", Kind: model.OptionInt, Default: "1", Label: "Multicast rate index"},
			{ID: "distance", Kind: model.OptionInt, Default: "1000", Label: "Max distance (m)"},
			{ID: "rtsthreshold", Kind: model.OptionInt, Default: "0", Label: "RTS threshold (bytes)"},
			{ID: "wmmenable", Kind: model.OptionBool, Default: "0", Label: "WMM enable"},
			{ID: "retrylimit0", Kind: model.OptionInt, Default: "3", Label: "Retry limit category 0"},
			{ID: "queuesize0", Kind: model.OptionInt, Default: "255", Label: "Queue size category 0"},
		},
		phyOptions: universalPHYOptions,
		log:        log,
	}
}

// commeffect is a shim-only model: effects are applied directly without a
// MAC/PHY pair.
func newCommEffect(log logging.Logger) core.Model {
	return &baseModel{
		name:        "commeffect",
		shimLibrary: "commeffectshim",
		shimOptions: []model.Option{
			{ID: "filterfile", Kind: model.OptionString, Default: "", Label: "Filter file"},
			{ID: "groupid", Kind: model.OptionInt, Default: "0", Label: "NEM group id"},
			{ID: "enablepromiscuousmode", Kind: model.OptionBool, Default: "0", Label: "Promiscuous mode"},
			{ID: "receivebufferperiod", Kind: model.OptionFloat, Default: "1.0", Label: "Receive buffer period (sec)"},
			{ID: "defaultconnectivitymode", Kind: model.OptionBool, Default: "1", Label: "Default connectivity"},
		},
		log: log,
	}
}

func newBypass(log logging.Logger) core.Model {
	return &baseModel{
		name:       "bypass",
		macLibrary: "bypassmaclayer",
		phyLibrary: "bypassphylayer",
		macOptions: []model.Option{},
		phyOptions: []model.Option{},
		log:        log,
	}
}

func newTDMA(log logging.Logger) core.Model {
	return &baseModel{
		name:       "tdmaeventscheduler",
		macLibrary: "tdmaeventschedulerradiomodel",
		phyLibrary: "emanephy",
		macOptions: []model.Option{
			{ID: "schedule", Kind: model.OptionString, Default: "", Label: "TDMA schedule file"},
			{ID: "fragmentationenable", Kind: model.OptionBool, Default: "1", Label: "Fragmentation"},
			{ID: "aggregationenable", Kind: model.OptionBool, Default: "1", Label: "Aggregation"},
			{ID: "queue.depth", Kind: model.OptionInt, Default: "256", Label: "Queue depth"},
			{ID: "queue.fragmentsize", Kind: model.OptionInt, Default: "1024", Label: "Fragment size (bytes)"},
		},
		phyOptions: universalPHYOptions,
		log:        log,
	}
}
