package registry

import "strings"

type targetKind int

const (
	kindName targetKind = iota
	kindDevice
	kindGroup
	kindNames
)

// Target selects the devices an operation applies to.
type Target struct {
	kind  targetKind
	names []string
}

// Name targets the group called n if one exists, otherwise the device n.
func Name(n string) Target { return Target{kind: kindName, names: []string{n}} }

// DeviceName targets the single device n, even when a group shares the name.
func DeviceName(n string) Target { return Target{kind: kindDevice, names: []string{n}} }

// GroupName targets the members of group n.
func GroupName(n string) Target { return Target{kind: kindGroup, names: []string{n}} }

// Names targets an explicit list of devices, in order.
func Names(names ...string) Target {
	return Target{kind: kindNames, names: append([]string(nil), names...)}
}

func (t Target) String() string {
	switch t.kind {
	case kindGroup:
		return "group " + t.names[0]
	case kindNames:
		return "[" + strings.Join(t.names, " ") + "]"
	default:
		if len(t.names) == 0 {
			return ""
		}
		return t.names[0]
	}
}
