package protocol

import "sync"

var (
	disableEnable  = []string{"disable", "enable"}
	batteryType    = []string{"AGM", "Flooded", "User"}
	inputRange     = []string{"Appliance", "UPS"}
	outputPriority = []string{"Solar-Utility-Battery", "Solar-Battery-Utility"}
	chargePriority = []string{"Solar first", "Solar and Utility", "Only solar"}
	solarPriority  = []string{"Battery-Load-Utility", "Load-Battery-Utility"}
	machineType    = []string{"Off-grid Tie", "Grid-Tie"}
	outputModel    = []string{"Single module", "Parallel output", "Phase 1 of three phase output", "Phase 2 of three phase output", "Phase 3 of three phase output"}
	chargerStatus  = []string{"abnormal", "normal but not charged", "charging"}
	powerDirection = []string{"donothing", "charge", "discharge"}
	dcacDirection  = []string{"donothing", "AC-DC", "DC-AC"}
	lineDirection  = []string{"donothing", "input", "output"}
)

var (
	legacyAck = []byte("(ACK\x39\x20\r")
	legacyNak = []byte("(NAK\x73\x73\r")
)

func execution() []FieldSpec {
	return []FieldSpec{Ack("Command execution", "Failed", "Successful")}
}

func flagOption(label string) FieldSpec {
	return Enum(label, disableEnable...)
}

func selectableCurrents() []FieldSpec {
	fields := make([]FieldSpec, 7)
	for i := range fields {
		fields[i] = Int("Max. charging current selectable value", "A")
	}
	return fields
}

func pi18Commands() []CommandSpec {
	return []CommandSpec{
		{
			Name:        "PI",
			Description: "Device protocol version inquiry",
			Help:        " -- queries the device protocol version",
			Kind:        Query,
			Response:    []FieldSpec{String("Protocol Version")},
			TestResponses: [][]byte{
				[]byte("^D00518;\x03\r"),
			},
		},
		{
			Name:        "ET",
			Description: "Total generated energy query",
			Help:        " -- query total generated energy",
			Kind:        Query,
			Response:    []FieldSpec{Int("Total generated energy", "Wh")},
			TestResponses: [][]byte{
				[]byte("^D01100123456\x05\xcc\r"),
			},
		},
		{
			Name:        "EY",
			Description: "Query generated energy of year",
			Help:        " -- example: EY2018 (yyyy)",
			Kind:        Query,
			Pattern:     `EY\d{4}`,
			Response:    []FieldSpec{Int("Generated energy year", "Wh")},
			TestResponses: [][]byte{
				[]byte("^D01100004567'\x80\r"),
			},
		},
		{
			Name:        "EM",
			Description: "Query generated energy of month",
			Help:        " -- example: EM201805 (yyyymm)",
			Kind:        Query,
			Pattern:     `EM\d{6}`,
			Response:    []FieldSpec{Int("Generated energy month", "Wh")},
			TestResponses: [][]byte{
				[]byte("^D01100000345\x19\xf1\r"),
			},
		},
		{
			Name:        "ED",
			Description: "Query generated energy of day",
			Help:        " -- example: ED20180521 (yyyymmdd)",
			Kind:        Query,
			Pattern:     `ED\d{8}`,
			Response:    []FieldSpec{Int("Generated energy day", "Wh")},
			TestResponses: [][]byte{
				[]byte("^D01100000012\xcf\xb3\r"),
			},
		},
		{
			Name:        "FLAG",
			Description: "Query enable/disable flag status",
			Help:        " -- query enable/disable flag status",
			Kind:        Query,
			Response: []FieldSpec{
				flagOption("Enable/disable silence buzzer or open buzzer"),
				flagOption("Enable/Disable overload bypass function"),
				flagOption("Enable/Disable LCD display escape to default page after 1min timeout"),
				flagOption("Enable/Disable overload restart"),
				flagOption("Enable/Disable over temperature restart"),
				flagOption("Enable/Disable backlight on"),
				flagOption("Enable/Disable alarm on when primary source interrupt"),
				flagOption("Enable/Disable fault code record"),
			},
			TestResponses: [][]byte{
				[]byte("^D0181,0,1,0,1,1,1,0JV\r"),
			},
		},
		{
			Name:        "PIRI",
			Description: "Query rated information",
			Help:        " -- query rated information",
			Kind:        Query,
			Response: []FieldSpec{
				Scaled("AC input rating voltage", "V"),
				Int("AC input rating current", "A"),
				Scaled("AC output rating voltage", "V"),
				Scaled("AC output rating frequency", "Hz"),
				Int("AC output rating current", "A"),
				Int("AC output rating apparent power", "VA"),
				Int("AC output rating active power", "W"),
				Scaled("Battery rating voltage", "V"),
				Scaled("Battery re-charge voltage", "V"),
				Scaled("Battery re-discharge voltage", "V"),
				Scaled("Battery under voltage", "V"),
				Scaled("Battery bulk voltage", "V"),
				Scaled("Battery float voltage", "V"),
				Enum("Battery type", batteryType...),
				Int("Max AC charging current", "A"),
				Int("Max charging current", "A"),
				Enum("Input voltage range", inputRange...),
				Enum("Output source priority", outputPriority...),
				Enum("Charger source priority", chargePriority...),
				Int("Parallel max num", ""),
				Enum("Machine type", machineType...),
				Enum("Topology", "transformerless", "transformer"),
				Enum("Output model setting", outputModel...),
				Enum("Solar power priority", solarPriority...),
				Int("MPPT string", ""),
			},
			TestResponses: [][]byte{
				[]byte("^D0852300,217,2300,500,217,5000,5000,480,500,440,420,564,548,2,30,060,0,1,1,9,0,0,0,1,2s\xb6\r"),
			},
		},
		{
			Name:        "DI",
			Description: "Query default value of changeable parameter",
			Kind:        Query,
			Response: []FieldSpec{
				Scaled("AC output voltage", "V"),
				Scaled("AC output frequency", "Hz"),
				Enum("AC input voltage range", inputRange...),
				Scaled("Battery under voltage", "V"),
				Scaled("Charging float voltage", "V"),
				Scaled("Charging bulk voltage", "V"),
				Scaled("Battery default re-charge voltage", "V"),
				Scaled("Battery re-discharge voltage", "V"),
				Int("Max charging current", "A"),
				Int("Max AC charging current", "A"),
				Enum("Battery type", batteryType...),
				Enum("Output source priority", outputPriority...),
				Enum("Charger source priority", chargePriority...),
				Enum("Solar power priority", solarPriority...),
				Enum("Machine type", machineType...),
				Enum("Output model setting", outputModel...),
				flagOption("Enable/disable silence buzzer or open buzzer"),
				flagOption("Enable/Disable overload restart"),
				flagOption("Enable/Disable over temperature restart"),
				flagOption("Enable/Disable LCD backlight on"),
				flagOption("Enable/Disable alarm on when primary source interrupt"),
				flagOption("Enable/Disable fault code record"),
				flagOption("Enable/Disable overload bypass"),
				flagOption("Enable/Disable LCD display escape to default page after 1min timeout"),
			},
			TestResponses: [][]byte{
				[]byte("^D0692300,500,0,440,540,564,460,540,060,030,2,1,1,0,0,0,1,1,1,1,1,1,0,1R\xac\r"),
			},
		},
		{
			Name:        "GS",
			Description: "General status query",
			Help:        " -- query general status information",
			Kind:        Query,
			Response: []FieldSpec{
				Scaled("Grid voltage", "V"),
				Scaled("Grid frequency", "Hz"),
				Scaled("AC output voltage", "V"),
				Scaled("AC output frequency", "Hz"),
				Int("AC output apparent power", "VA"),
				Int("AC output active power", "W"),
				Int("Output load percent", "%"),
				Scaled("Battery voltage", "V"),
				Scaled("Battery voltage from SCC", "V"),
				Scaled("Battery voltage from SCC2", "V"),
				Int("Battery discharge current", "A"),
				Int("Battery charging current", "A"),
				Int("Battery capacity", "%"),
				Int("Inverter heat sink temperature", "°C"),
				Int("MPPT1 charger temperature", "°C"),
				Int("MPPT2 charger temperature", "°C"),
				Int("PV1 Input power", "W"),
				Int("PV2 Input power", "W"),
				Scaled("PV1 Input voltage", "V"),
				Scaled("PV2 Input voltage", "V"),
				Enum("Setting value configuration state", "Nothing changed", "Something changed"),
				Enum("MPPT1 charger status", chargerStatus...),
				Enum("MPPT2 charger status", chargerStatus...),
				Enum("Load connection", "disconnect", "connect"),
				Enum("Battery power direction", powerDirection...),
				Enum("DC/AC power direction", dcacDirection...),
				Enum("Line power direction", lineDirection...),
				Int("Local parallel ID", ""),
			},
			TestResponses: [][]byte{
				[]byte("D1062232,499,2232,499,0971,0710,019,008,000,000,000,000,000,044,000,000,0520,0000,1941,0000,0,2,0,1,0,2,1,0\x09\x7b\r"),
				NakFrame,
			},
		},
		{
			Name:        "MOD",
			Description: "Working mode query",
			Help:        " -- query the working mode",
			Kind:        Query,
			Response: []FieldSpec{
				Enum("Working mode",
					"Power on mode",
					"Standby mode",
					"Bypass mode",
					"Battery mode",
					"Fault mode",
					"Hybrid mode(Line mode, Grid mode)",
				),
			},
			TestResponses: [][]byte{
				[]byte("^D00505\xd9\x9f\r"),
			},
		},
		{
			Name:          "MCHGCR",
			Description:   "Query Max. charging current selectable value",
			Kind:          Query,
			Response:      selectableCurrents(),
			TestResponses: [][]byte{[]byte("^D030010,020,030,040,050,060,080[\x96\r")},
		},
		{
			Name:          "MUCHGCR",
			Description:   "Query Max. AC charging current selectable value",
			Kind:          Query,
			Response:      selectableCurrents(),
			TestResponses: [][]byte{[]byte("^D030002,010,020,030,040,050,060\xc8j\r")},
		},
		{
			Name:          "POP",
			Description:   "Set output source priority",
			Help:          " -- examples: POP0 (solar-utility-battery), POP1 (solar-battery-utility)",
			Kind:          Setter,
			Pattern:       `POP[01]`,
			Response:      execution(),
			TestResponses: [][]byte{AckFrame, NakFrame},
		},
		{
			Name:          "PCP",
			Description:   "Set charging source priority",
			Help:          " -- examples: PCP00 (solar first), PCP01 (solar and utility), PCP02 (only solar)",
			Kind:          Setter,
			Pattern:       `PCP0[012]`,
			Response:      execution(),
			TestResponses: [][]byte{AckFrame, NakFrame},
		},
		{
			Name:          "PSP",
			Description:   "Set solar power priority",
			Help:          " -- examples: PSP0 (battery-load-utility), PSP1 (load-battery-utility)",
			Kind:          Setter,
			Pattern:       `PSP[01]`,
			Response:      execution(),
			TestResponses: [][]byte{AckFrame, NakFrame},
		},
		{
			Name:          "PE",
			Description:   "Enable flag",
			Help:          " -- examples: PEA (enable buzzer), PEI (machine type Grid-Tie), flags A..H follow the FLAG query order, I is the machine type",
			Kind:          Setter,
			Pattern:       `PE[A-I]`,
			Response:      execution(),
			TestResponses: [][]byte{AckFrame, NakFrame},
		},
		{
			Name:          "PD",
			Description:   "Disable flag",
			Help:          " -- examples: PDA (silence buzzer), PDI (machine type Off-Grid), flags A..H follow the FLAG query order, I is the machine type",
			Kind:          Setter,
			Pattern:       `PD[A-I]`,
			Response:      execution(),
			TestResponses: [][]byte{AckFrame, NakFrame},
		},
		{
			Name:          "MCHGV",
			Description:   "Set battery maximum charge voltage",
			Help:          " -- example: MCHGV552,540 (bulk 55.2V, float 54.0V)",
			Kind:          Setter,
			Pattern:       `MCHGV\d{3},\d{3}`,
			Response:      execution(),
			TestResponses: [][]byte{legacyNak, legacyAck},
		},
		{
			Name:          "MCHGC",
			Description:   "Set battery max charging current solar + AC",
			Help:          " -- example: MCHGC0,030 (unit 0, 30A)",
			Kind:          Setter,
			Pattern:       `MCHGC\d,0\d\d`,
			Response:      execution(),
			TestResponses: [][]byte{legacyNak, legacyAck},
		},
		{
			Name:          "MUCHGC",
			Description:   "Set battery max AC charging current",
			Help:          " -- example: MUCHGC0,030 (unit 0, 30A utility charging)",
			Kind:          Setter,
			Pattern:       `MUCHGC\d,(?:002|0\d\d)`,
			Response:      execution(),
			TestResponses: [][]byte{AckFrame, NakFrame},
		},
		{
			Name:          "PSDV",
			Description:   "Set battery cut-off voltage",
			Help:          " -- example: PSDV450 (45.0V cut-off for a 48V unit)",
			Kind:          Setter,
			Pattern:       `PSDV\d{3}`,
			Response:      execution(),
			TestResponses: [][]byte{legacyNak, legacyAck},
		},
		{
			Name:          "BUCD",
			Description:   "Set battery stop discharging / charging voltage when grid is available",
			Help:          " -- example: BUCD440,480 (stop discharge 44.0V, stop charge 48.0V)",
			Kind:          Setter,
			Pattern:       `BUCD\d{3},\d{3}`,
			Response:      execution(),
			TestResponses: [][]byte{legacyNak, legacyAck},
		},
	}
}

// PI18Config returns the built-in PI18 command table.
func PI18Config() RegistryConfig {
	return RegistryConfig{
		Commands: pi18Commands(),
		Status:   []string{"PIRI", "MOD", "GS", "ET", "DI", "FLAG"},
		Settings: []string{"PI", "MCHGCR", "MUCHGCR"},
		Default:  "PI",
	}
}

var (
	pi18Once sync.Once
	pi18     *Registry
	pi18Err  error
)

// PI18 returns the shared PI18 registry, building it on first use.
func PI18() (*Registry, error) {
	pi18Once.Do(func() {
		pi18, pi18Err = NewRegistry(PI18Config())
	})
	return pi18, pi18Err
}

// MustPI18 is PI18 for callers that treat a broken built-in table as fatal.
func MustPI18() *Registry {
	r, err := PI18()
	if err != nil {
		panic(err)
	}
	return r
}
