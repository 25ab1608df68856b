package config

// Config is the agent's full configuration surface (spec.md §6
// "Configuration surface (agent)").
type Config struct {
	Enb        EnbConfig        `yaml:"enb"`
	Cell       CellConfig       `yaml:"cell"`
	Controller ControllerConfig `yaml:"controller"`
	Slicing    SlicingConfig    `yaml:"slicing"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	LogLevel   string           `yaml:"log_level"`
}

type EnbConfig struct {
	ID uint32 `yaml:"id"`
}

type CellConfig struct {
	PCI      uint16 `yaml:"pci"`
	NPRB     uint32 `yaml:"n_prb"`
	DLEarfcn uint32 `yaml:"dl_earfcn"`
	ULEarfcn uint32 `yaml:"ul_earfcn"`
	MCC      uint16 `yaml:"mcc"`
	MNC      uint16 `yaml:"mnc"`
}

type ControllerConfig struct {
	Addr string `yaml:"addr"`
	Port uint16 `yaml:"port"`
}

// SlicingConfig replaces the teacher's build-time feature flag: when
// Enabled is false, slice-lifecycle commands from the controller are
// answered with SLICE_NOT_SUPPORTED instead of being dispatched.
type SlicingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelemetryConfig wires the optional InfluxDB mirror and the Prometheus
// debug endpoint (SPEC_FULL.md §11). Both are off unless configured.
type TelemetryConfig struct {
	MetricsAddr string       `yaml:"metrics_addr"`
	InfluxDB    InfluxConfig `yaml:"influxdb"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// cellWidthTable mirrors the cell-width table in spec.md §4.1 step 2,
// ordered by the nof_rbg column so RBGParams can find the nearest
// not-exceeding entry.
var cellWidthTable = []struct {
	NofRBG  uint32
	MaxRBG  uint32
	RBGSize uint32
}{
	{6, 6, 1},
	{8, 8, 2},
	{13, 13, 2},
	{17, 17, 3},
	{19, 19, 4},
	{25, 25, 4},
}

// RBGParams returns the nearest not-exceeding cell-width table entry for a
// MAC-reported nof_rbg. ransched consults this on the first observation of
// a new nof_rbg in new_tti. ok is false if nof_rbg is smaller than every
// table entry.
func RBGParams(nofRBG uint32) (maxRBG, rbgSize uint32, ok bool) {
	for i := len(cellWidthTable) - 1; i >= 0; i-- {
		e := cellWidthTable[i]
		if e.NofRBG <= nofRBG {
			return e.MaxRBG, e.RBGSize, true
		}
	}
	return 0, 0, false
}
