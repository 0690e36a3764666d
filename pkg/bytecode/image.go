package bytecode

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is the current image format version. Increment when making
// incompatible changes to the format.
const ImageVersion uint16 = 1

// ImageMagic prefixes every image file.
var ImageMagic = []byte{'D', 'C', 'I', 0}

// cborEncMode uses canonical encoding so the same program always produces the
// same image bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is the on-disk form of a compiled program: the magic prefix followed
// by a CBOR record. SourceHash ties the image back to the source text it was
// compiled from.
type Image struct {
	Version    uint16   `cbor:"version"`
	Code       []byte   `cbor:"code"`
	PoolBase   int      `cbor:"pool_base"`
	MaxStack   int      `cbor:"max_stack"`
	SourceHash [32]byte `cbor:"source_hash"`
}

// SourceHash returns the hash that images record for a source text.
func SourceHash(source string) [32]byte {
	return sha256.Sum256([]byte(source))
}

// MarshalImage serializes a program to image bytes.
func MarshalImage(prog *Program, sourceHash [32]byte) ([]byte, error) {
	img := &Image{
		Version:    ImageVersion,
		Code:       prog.Code,
		PoolBase:   prog.PoolBase,
		MaxStack:   prog.MaxStack,
		SourceHash: sourceHash,
	}
	payload, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal image: %w", err)
	}
	out := make([]byte, 0, len(ImageMagic)+len(payload))
	out = append(out, ImageMagic...)
	out = append(out, payload...)
	return out, nil
}

// UnmarshalImage deserializes image bytes back into a program.
func UnmarshalImage(data []byte) (*Image, error) {
	if len(data) < len(ImageMagic) || !bytes.Equal(data[:len(ImageMagic)], ImageMagic) {
		return nil, fmt.Errorf("bytecode: not an image (bad magic)")
	}
	var img Image
	if err := cbor.Unmarshal(data[len(ImageMagic):], &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal image: %w", err)
	}
	if img.Version > ImageVersion {
		return nil, fmt.Errorf("bytecode: image version %d is newer than supported version %d", img.Version, ImageVersion)
	}
	if img.PoolBase < 0 || img.PoolBase > len(img.Code) {
		return nil, fmt.Errorf("bytecode: image pool base %d outside code (%d bytes)", img.PoolBase, len(img.Code))
	}
	return &img, nil
}

// Program converts a decoded image back to an executable program.
func (img *Image) Program() *Program {
	return &Program{
		Code:     img.Code,
		PoolBase: img.PoolBase,
		MaxStack: img.MaxStack,
	}
}
