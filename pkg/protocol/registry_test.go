package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestPI18Loads(t *testing.T) {
	reg, err := PI18()
	if err != nil {
		t.Fatalf("PI18: %v", err)
	}
	if reg.Len() != len(pi18Commands()) {
		t.Fatalf("Len = %d, want %d", reg.Len(), len(pi18Commands()))
	}
	if reg.DefaultCommand() != "PI" {
		t.Fatalf("DefaultCommand = %q", reg.DefaultCommand())
	}
	for _, name := range reg.StatusCommands() {
		if _, err := reg.Validate(name, ""); err != nil {
			t.Errorf("status command %s not sendable bare: %v", name, err)
		}
	}

	gs, ok := reg.Command("GS")
	if !ok {
		t.Fatal("GS not registered")
	}
	if len(gs.Response) != 28 {
		t.Fatalf("GS has %d fields, want 28", len(gs.Response))
	}
	if gs.Response[0].Label != "Grid voltage" || gs.Response[0].Type != FieldScaledInt || gs.Response[0].Unit != "V" {
		t.Fatalf("GS field 0 = %+v", gs.Response[0])
	}
}

func TestRegistryCommandReturnsCopy(t *testing.T) {
	reg := MustPI18()
	spec, _ := reg.Command("MOD")
	spec.Response[0].Options[0] = "tampered"
	spec.Response[0].Label = "tampered"

	again, _ := reg.Command("MOD")
	if again.Response[0].Options[0] != "Power on mode" || again.Response[0].Label != "Working mode" {
		t.Fatalf("registry mutated through returned spec: %+v", again.Response[0])
	}
}

func TestNamesSorted(t *testing.T) {
	names := MustPI18().Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted at %d: %q >= %q", i, names[i-1], names[i])
		}
	}
}

func TestNewRegistryRejects(t *testing.T) {
	query := CommandSpec{Name: "QX", Kind: Query, Response: []FieldSpec{Int("x", "")}}

	tests := []struct {
		name string
		cfg  RegistryConfig
		want string
	}{
		{
			name: "duplicate",
			cfg:  RegistryConfig{Commands: []CommandSpec{query, query}},
			want: "duplicate",
		},
		{
			name: "bad pattern",
			cfg: RegistryConfig{Commands: []CommandSpec{
				{Name: "SX", Kind: Setter, Pattern: "SX[", Response: []FieldSpec{Int("x", "")}},
			}},
			want: "pattern",
		},
		{
			name: "missing name",
			cfg:  RegistryConfig{Commands: []CommandSpec{{Kind: Query}}},
			want: "missing name",
		},
		{
			name: "invalid kind",
			cfg:  RegistryConfig{Commands: []CommandSpec{{Name: "ZZ"}}},
			want: "invalid kind",
		},
		{
			name: "enum without options",
			cfg: RegistryConfig{Commands: []CommandSpec{
				{Name: "QE", Kind: Query, Response: []FieldSpec{Enum("mode")}},
			}},
			want: "enum without options",
		},
		{
			name: "ack without labels",
			cfg: RegistryConfig{Commands: []CommandSpec{
				{Name: "SA", Kind: Setter, Response: []FieldSpec{{Type: FieldAck, Label: "exec"}}},
			}},
			want: "ack needs",
		},
		{
			name: "unregistered status command",
			cfg:  RegistryConfig{Commands: []CommandSpec{query}, Status: []string{"NOPE"}},
			want: "not registered",
		},
		{
			name: "status command needs parameters",
			cfg: RegistryConfig{Commands: []CommandSpec{
				{Name: "EY", Kind: Query, Pattern: `EY\d{4}`, Response: []FieldSpec{Int("y", "Wh")}},
			}, Status: []string{"EY"}},
			want: "requires parameters",
		},
		{
			name: "unregistered default",
			cfg:  RegistryConfig{Commands: []CommandSpec{query}, Default: "PI"},
			want: "not registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.cfg)
			if !errors.Is(err, ErrInvalidRegistry) {
				t.Fatalf("err = %v, want ErrInvalidRegistry", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNewRegistryCopiesInput(t *testing.T) {
	cmds := []CommandSpec{{Name: "QM", Kind: Query, Response: []FieldSpec{Enum("m", "a", "b")}}}
	reg, err := NewRegistry(RegistryConfig{Commands: cmds})
	if err != nil {
		t.Fatal(err)
	}
	cmds[0].Response[0].Options[0] = "changed"

	spec, _ := reg.Command("QM")
	if spec.Response[0].Options[0] != "a" {
		t.Fatalf("registry shares caller slices: %v", spec.Response[0].Options)
	}
}

func TestValidate(t *testing.T) {
	reg := MustPI18()

	tests := []struct {
		command string
		params  string
		wantErr error
	}{
		{"POP", "0", nil},
		{"POP", "1", nil},
		{"POP", "2", ErrValidation},
		{"POP", "", ErrValidation},
		{"PCP", "02", nil},
		{"PCP", "03", ErrValidation},
		{"PEA", "", ErrUnknownCommand},
		{"PE", "A", nil},
		{"PD", "H", nil},
		{"PD", "I", nil},
		{"PE", "I", nil},
		{"PD", "J", ErrValidation},
		{"MCHGV", "552,540", nil},
		{"MCHGV", "55,540", ErrValidation},
		{"MUCHGC", "0,002", nil},
		{"MUCHGC", "0,030", nil},
		{"MUCHGC", "0,130", ErrValidation},
		{"EY", "2018", nil},
		{"EY", "18", ErrValidation},
		{"GS", "", nil},
		{"GS", "1", ErrValidation},
		{"XYZ", "", ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.command+tt.params, func(t *testing.T) {
			spec, err := reg.Validate(tt.command, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if spec.Name != tt.command {
				t.Fatalf("spec.Name = %q", spec.Name)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	reg := MustPI18()

	tests := []struct {
		input  string
		name   string
		params string
	}{
		{"PI", "PI", ""},
		{"PIRI", "PIRI", ""},
		{"POP1", "POP", "1"},
		{"PEA", "PE", "A"},
		{"PDC", "PD", "C"},
		{"MUCHGC0,030", "MUCHGC", "0,030"},
		{"MCHGC0,040", "MCHGC", "0,040"},
		{"MUCHGCR", "MUCHGCR", ""},
		{"EY2018", "EY", "2018"},
		{"ED20180521", "ED", "20180521"},
		{"PEI", "PE", "I"},
		{"PDI", "PD", "I"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, params, err := reg.Resolve(tt.input)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if name != tt.name || params != tt.params {
				t.Fatalf("Resolve(%q) = %q, %q; want %q, %q", tt.input, name, params, tt.name, tt.params)
			}
		})
	}

	failures := []struct {
		input string
		want  error
	}{
		{"", ErrUnknownCommand},
		{"HELLO", ErrUnknownCommand},
		{"XGS", ErrUnknownCommand},
		{"POP2", ErrValidation},
		{"POP9", ErrValidation},
		{"PEZ", ErrValidation},
		{"GSX", ErrValidation},
		{"PIRIX", ErrValidation},
		{"MUCHGC0,130", ErrValidation},
	}
	for _, f := range failures {
		_, _, err := reg.Resolve(f.input)
		if !errors.Is(err, f.want) {
			t.Errorf("Resolve(%q) err = %v, want %v", f.input, err, f.want)
		}
		if f.want == ErrValidation && errors.Is(err, ErrUnknownCommand) {
			t.Errorf("Resolve(%q) reported an unknown command", f.input)
		}
	}
}

func TestErrorKind(t *testing.T) {
	fieldErr := &FieldError{Command: "MOD", Index: 0, Label: "Working mode", Token: "7", Err: ErrOutOfRangeEnum}

	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{ErrUnknownCommand, "unknown_command"},
		{ErrValidation, "validation"},
		{ErrSchemaMismatch, "schema_mismatch"},
		{fieldErr, "enum_range"},
		{&FieldError{Err: ErrMalformedField}, "malformed_field"},
		{ErrMalformedFrame, "malformed_frame"},
		{ErrChecksum, "checksum"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	var fe *FieldError
	if !errors.As(fieldErr, &fe) || fe.Index != 0 || fe.Token != "7" {
		t.Fatalf("errors.As failed: %+v", fe)
	}
}
