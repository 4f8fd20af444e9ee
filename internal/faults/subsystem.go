package faults

// Subsystem identifies one monitored part of the installation.
type Subsystem int

const (
	Solar Subsystem = iota
	Wind
	Battery
	Connectivity
)

var subsystemNames = map[Subsystem]string{
	Solar:        "solar",
	Wind:         "wind",
	Battery:      "battery",
	Connectivity: "connectivity",
}

func (s Subsystem) String() string {
	if name, ok := subsystemNames[s]; ok {
		return name
	}
	return "unknown"
}

// Subsystems lists all monitored subsystems in check order.
func Subsystems() []Subsystem {
	return []Subsystem{Solar, Wind, Battery, Connectivity}
}

// State is the health state of one subsystem.
type State int

const (
	Nominal State = iota
	Warning
	Fault
)

func (s State) String() string {
	switch s {
	case Warning:
		return "warning"
	case Fault:
		return "fault"
	default:
		return "nominal"
	}
}
