package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Parse errors.
var (
	ErrInvalidName          = errors.New("invalid resource name")
	ErrUnsupportedInterface = errors.New("unsupported resource interface")
)

// nameLexer splits a resource name into words separated by "::". Bracketed
// IPv6 literals are kept as one word.
var nameLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Sep", Pattern: `::`},
	{Name: "Word", Pattern: `\[[^\]]*\]|[^:\s\[]+`},
})

// nameAST is the raw field list; interpretation happens in Parse because the
// meaning of each field depends on the interface keyword.
type nameAST struct {
	Head  string   `parser:"@Word"`
	Parts []string `parser:"( Sep @Word )*"`
}

var nameParser = participle.MustBuild[nameAST](
	participle.Lexer(nameLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse parses a resource name.
func Parse(s string) (Name, error) {
	ast, err := nameParser.ParseString("", strings.TrimSpace(s))
	if err != nil {
		return Name{}, fmt.Errorf("%w %q: %v", ErrInvalidName, s, err)
	}

	n, err := interpret(ast)
	if err != nil {
		return Name{}, fmt.Errorf("%w %q: %w", ErrInvalidName, s, err)
	}
	return n, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level variables.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

func interpret(ast *nameAST) (Name, error) {
	var n Name

	head := strings.ToUpper(ast.Head)
	var suffix string
	switch {
	case strings.HasPrefix(head, "TCPIP"):
		n.Interface, suffix = InterfaceTCPIP, ast.Head[len("TCPIP"):]
	case strings.HasPrefix(head, "USB"):
		n.Interface, suffix = InterfaceUSB, ast.Head[len("USB"):]
	case strings.HasPrefix(head, "GPIB"):
		n.Interface, suffix = InterfaceGPIB, ast.Head[len("GPIB"):]
	case strings.HasPrefix(head, "ASRL"):
		n.Interface, suffix = InterfaceASRL, ast.Head[len("ASRL"):]
	default:
		return n, fmt.Errorf("%w: %s", ErrUnsupportedInterface, ast.Head)
	}

	switch {
	case suffix == "":
	case isDigits(suffix):
		n.Board, _ = strconv.Atoi(suffix)
	case n.Interface == InterfaceASRL:
		n.Path = suffix
	default:
		return n, fmt.Errorf("invalid board number %q", suffix)
	}

	fields := ast.Parts
	explicitClass := false
	if len(fields) > 0 {
		if c, ok := parseClass(fields[len(fields)-1]); ok {
			n.Class = c
			explicitClass = true
			fields = fields[:len(fields)-1]
		}
	}

	switch n.Interface {
	case InterfaceTCPIP:
		return interpretTCPIP(n, fields, explicitClass)
	case InterfaceUSB:
		return interpretUSB(n, fields)
	case InterfaceGPIB:
		return interpretGPIB(n, fields)
	default:
		if len(fields) != 0 || n.Class != ClassInstr {
			return n, errors.New("serial resources take no address fields")
		}
		return n, nil
	}
}

func interpretTCPIP(n Name, fields []string, explicitClass bool) (Name, error) {
	if len(fields) == 0 || len(fields) > 2 {
		return n, errors.New("expected host and optional device or port")
	}
	n.Host = strings.ToLower(fields[0])

	// TCPIP::host::5025 is accepted as shorthand for a SOCKET resource.
	if !explicitClass && len(fields) == 2 && isDigits(fields[1]) {
		n.Class = ClassSocket
	}

	switch n.Class {
	case ClassSocket:
		if len(fields) != 2 {
			return n, errors.New("socket resources need a port")
		}
		port, err := strconv.Atoi(fields[1])
		if err != nil || port <= 0 || port > 65535 {
			return n, fmt.Errorf("invalid port %q", fields[1])
		}
		n.Port = port
	case ClassInstr:
		n.Device = DefaultLANDevice
		if len(fields) == 2 {
			n.Device = fields[1]
		}
	default:
		return n, fmt.Errorf("class %s not valid for TCPIP", n.Class)
	}
	return n, nil
}

func interpretUSB(n Name, fields []string) (Name, error) {
	if len(fields) < 3 || len(fields) > 4 {
		return n, errors.New("expected vendor::product::serial[::interface]")
	}
	if n.Class == ClassSocket {
		return n, errors.New("class SOCKET not valid for USB")
	}

	vid, err := strconv.ParseUint(fields[0], 0, 16)
	if err != nil {
		return n, fmt.Errorf("invalid vendor id %q", fields[0])
	}
	pid, err := strconv.ParseUint(fields[1], 0, 16)
	if err != nil {
		return n, fmt.Errorf("invalid product id %q", fields[1])
	}
	n.VendorID, n.ProductID = uint16(vid), uint16(pid)
	n.Serial = fields[2]

	if len(fields) == 4 {
		intf, err := strconv.Atoi(fields[3])
		if err != nil || intf < 0 {
			return n, fmt.Errorf("invalid interface number %q", fields[3])
		}
		n.USBInterface, n.HasInterface = intf, true
	}
	return n, nil
}

func interpretGPIB(n Name, fields []string) (Name, error) {
	if len(fields) == 0 || len(fields) > 2 {
		return n, errors.New("expected primary[::secondary] address")
	}
	if n.Class != ClassInstr {
		return n, fmt.Errorf("class %s not valid for GPIB", n.Class)
	}

	primary, err := strconv.Atoi(fields[0])
	if err != nil || primary < 0 || primary > 30 {
		return n, fmt.Errorf("invalid primary address %q", fields[0])
	}
	n.Primary = primary

	if len(fields) == 2 {
		secondary, err := strconv.Atoi(fields[1])
		if err != nil || secondary < 0 || secondary > 30 {
			return n, fmt.Errorf("invalid secondary address %q", fields[1])
		}
		n.Secondary, n.HasSecondary = secondary, true
	}
	return n, nil
}

func parseClass(s string) (Class, bool) {
	switch strings.ToUpper(s) {
	case "INSTR":
		return ClassInstr, true
	case "SOCKET":
		return ClassSocket, true
	case "RAW":
		return ClassRaw, true
	}
	return ClassInstr, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
