package types

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
)

// InputIdentity captures enough of a source file's identity to detect
// that it changed between runs without rereading its full content.
type InputIdentity struct {
	Path    string
	Size    int64
	ModUnix int64
}

// FingerprintInputs is everything that would change the produced audio.
// Any difference between two FingerprintInputs invalidates resume.
type FingerprintInputs struct {
	Input              InputIdentity
	NormalizerOptions  string // serialized normalizer option set
	CharTarget         int
	PhonemeHardLimit   int
	NarratorVoice      string
	Speed              float64
	SampleRate         uint32
	CharacterMap       map[string]string
	BackendModelID     string
}

// Fingerprint computes the stable SettingsFingerprint hash. The map is
// sorted by key before hashing so the result does not depend on Go's
// randomized map iteration order.
func Fingerprint(in FingerprintInputs) []byte {
	h := sha256.New()

	fmt.Fprintf(h, "path=%s\x00size=%d\x00mtime=%d\x00",
		in.Input.Path, in.Input.Size, in.Input.ModUnix)
	fmt.Fprintf(h, "norm=%s\x00", in.NormalizerOptions)
	fmt.Fprintf(h, "chartarget=%d\x00phoneme=%d\x00", in.CharTarget, in.PhonemeHardLimit)
	fmt.Fprintf(h, "narrator=%s\x00speed=%g\x00", in.NarratorVoice, in.Speed)

	var rateBuf [4]byte
	binary.BigEndian.PutUint32(rateBuf[:], in.SampleRate)
	h.Write(rateBuf[:])

	names := make([]string, 0, len(in.CharacterMap))
	for name := range in.CharacterMap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "voice[%s]=%s\x00", name, in.CharacterMap[name])
	}

	fmt.Fprintf(h, "backend=%s\x00", in.BackendModelID)

	return h.Sum(nil)
}
