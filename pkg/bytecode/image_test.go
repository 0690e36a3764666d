package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

func TestImageRoundTrip(t *testing.T) {
	src := `let u32 x = 1 + 250;`
	prog := compileOrFail(t, src)
	hash := SourceHash(src)

	data, err := MarshalImage(prog, hash)
	if err != nil {
		t.Fatal(err)
	}
	img, err := UnmarshalImage(data)
	if err != nil {
		t.Fatal(err)
	}

	if img.Version != ImageVersion {
		t.Errorf("version = %d, want %d", img.Version, ImageVersion)
	}
	if img.SourceHash != hash {
		t.Error("source hash did not survive the round trip")
	}

	back := img.Program()
	if !bytes.Equal(back.Code, prog.Code) || back.PoolBase != prog.PoolBase || back.MaxStack != prog.MaxStack {
		t.Error("decoded program differs from the encoded one")
	}

	vm := NewVM()
	if err := vm.Execute(back); err != nil {
		t.Fatalf("executing decoded program: %v", err)
	}
	if got := leftU32(vm); got != 251 {
		t.Errorf("decoded program result = %d, want 251", got)
	}
}

func TestImageMarshalIsDeterministic(t *testing.T) {
	prog := compileOrFail(t, `let u8 x = 1;`)
	hash := SourceHash(`let u8 x = 1;`)

	a, err := MarshalImage(prog, hash)
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalImage(prog, hash)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("marshaling the same program twice produced different bytes")
	}
}

func TestUnmarshalImageRejectsBadInput(t *testing.T) {
	prog := compileOrFail(t, `let u8 x = 1;`)
	data, err := MarshalImage(prog, SourceHash(""))
	if err != nil {
		t.Fatal(err)
	}

	bad := append([]byte(nil), data...)
	bad[0] = 'X'
	if _, err := UnmarshalImage(bad); err == nil || !strings.Contains(err.Error(), "bad magic") {
		t.Errorf("corrupt magic: err = %v, want bad magic", err)
	}

	if _, err := UnmarshalImage(data[:2]); err == nil {
		t.Error("expected an error for truncated data")
	}

	truncated := data[:len(data)-3]
	if _, err := UnmarshalImage(truncated); err == nil {
		t.Error("expected an error for a truncated payload")
	}
}

func TestSourceHashDistinguishesSources(t *testing.T) {
	if SourceHash("let u8 a = 1;") == SourceHash("let u8 a = 2;") {
		t.Error("different sources hashed to the same value")
	}
	if SourceHash("x") != SourceHash("x") {
		t.Error("identical sources hashed to different values")
	}
}
