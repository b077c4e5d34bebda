package sdproto

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMethodNotFound is returned when a catalog entry references a
// symbolic method name the registry does not know.
var ErrMethodNotFound = errors.New("method not found")

// MCHandler converts a Manchester bit string into the protocol payload.
// It returns status 1 and the payload on success, or a negative status
// and an error text.
type MCHandler func(d *Decoder, name, bitData, protocolID string, mcBitNum int) (int, string)

// PostDemodFunc validates and rewrites a demodulated bit vector. It
// returns status 1 and the replacement bits on success; any other
// status drops the candidate.
type PostDemodFunc func(d *Decoder, name string, bits []int) (int, []int)

// postDemodEntry wraps a post-demodulation function with its declared
// input contract. Functions that cannot consume 'F' (float) bits leave
// acceptsNonBinary false; candidates still carrying 'F' bits are then
// dropped before the call.
type postDemodEntry struct {
	fn               PostDemodFunc
	acceptsNonBinary bool
}

// MNConverter transforms an MN hex payload into the dispatched form.
// ok=false drops the candidate.
type MNConverter func(d *Decoder, protocolID, hexData string) (string, bool)

// The dispatch tables are populated at init time; protocol descriptors
// stay pure data and reference handlers by symbolic name only. The
// module prefix used in catalog files ("manchester.mcBit2Grothe") is
// ignored during lookup.
var (
	mcHandlers = map[string]MCHandler{}
	postDemods = map[string]postDemodEntry{}
	mnConverts = map[string]MNConverter{}
)

func init() {
	mcHandlers["mcRaw"] = (*Decoder).mcRaw
	mcHandlers["mcBit2Funkbus"] = (*Decoder).mcBit2Funkbus
	mcHandlers["mcBit2Sainlogic"] = (*Decoder).mcBit2Sainlogic
	mcHandlers["mcBit2AS"] = (*Decoder).mcBit2AS
	mcHandlers["mcBit2Hideki"] = (*Decoder).mcBit2Hideki
	mcHandlers["mcBit2Maverick"] = (*Decoder).mcBit2Maverick
	mcHandlers["mcBit2OSV1"] = (*Decoder).mcBit2OSV1
	mcHandlers["mcBit2OSV2o3"] = (*Decoder).mcBit2OSV2o3
	mcHandlers["mcBit2OSPIR"] = (*Decoder).mcBit2OSPIR
	mcHandlers["mcBit2TFA"] = (*Decoder).mcBit2TFA
	mcHandlers["mcBit2Grothe"] = (*Decoder).mcBit2Grothe
	mcHandlers["mcBit2SomfyRTS"] = (*Decoder).mcBit2SomfyRTS

	postDemods["postDemo_EM"] = postDemodEntry{fn: (*Decoder).postDemoEM}
	postDemods["postDemo_Revolt"] = postDemodEntry{fn: (*Decoder).postDemoRevolt}
	postDemods["postDemo_FS20"] = postDemodEntry{fn: (*Decoder).postDemoFS20}
	postDemods["postDemo_FHT80"] = postDemodEntry{fn: (*Decoder).postDemoFHT80}
	postDemods["postDemo_FHT80TF"] = postDemodEntry{fn: (*Decoder).postDemoFHT80TF}
	postDemods["postDemo_WS2000"] = postDemodEntry{fn: (*Decoder).postDemoWS2000}
	postDemods["postDemo_WS7035"] = postDemodEntry{fn: (*Decoder).postDemoWS7035}
	postDemods["postDemo_WS7053"] = postDemodEntry{fn: (*Decoder).postDemoWS7053}
	postDemods["postDemo_lengtnPrefix"] = postDemodEntry{fn: (*Decoder).postDemoLengthPrefix}

	mnConverts["ConvBresser_lightning"] = (*Decoder).convBresserLightning
	mnConverts["ConvBresser_5in1"] = (*Decoder).convBresser5in1
	mnConverts["ConvBresser_6in1"] = (*Decoder).convBresser6in1
	mnConverts["ConvBresser_7in1"] = (*Decoder).convBresser7in1
	mnConverts["ConvPCA301"] = (*Decoder).convPCA301
	mnConverts["ConvKoppFreeControl"] = (*Decoder).convKoppFreeControl
	mnConverts["ConvLaCrosse"] = (*Decoder).convLaCrosse
}

// methodBaseName strips the module prefix from a symbolic method name.
func methodBaseName(full string) string {
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		return full[i+1:]
	}
	return full
}

func resolveMC(full string) (MCHandler, error) {
	if h, ok := mcHandlers[methodBaseName(full)]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, full)
}

func resolvePostDemod(full string) (postDemodEntry, error) {
	if e, ok := postDemods[methodBaseName(full)]; ok {
		return e, nil
	}
	return postDemodEntry{}, fmt.Errorf("%w: %s", ErrMethodNotFound, full)
}

func resolveMN(full string) (MNConverter, error) {
	if fn, ok := mnConverts[methodBaseName(full)]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, full)
}

// ResolveMethod reports whether a symbolic method name from a catalog
// entry is known to any dispatch table. Used to validate a catalog at
// startup.
func ResolveMethod(full string) error {
	base := methodBaseName(full)
	if _, ok := mcHandlers[base]; ok {
		return nil
	}
	if _, ok := postDemods[base]; ok {
		return nil
	}
	if _, ok := mnConverts[base]; ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMethodNotFound, full)
}
