package codecbits

// aacSampleRates is MPEG-4 Audio's sampling-frequency table, indexed by
// the 4-bit sampling_frequency_index.
var aacSampleRates = []uint32{
	96000, 88200, 64000, 48000,
	44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000,
	7350, 0, 0, 0,
}

var aacChannels = []uint32{0, 1, 2, 3, 4, 5, 6, 8}

// AACConfig is the subset of an AudioSpecificConfig worth surfacing in
// logs/metadata: object type (profile), sample rate, and channel count.
type AACConfig struct {
	ObjectType int
	SampleRate uint32
	Channels   uint32
}

func readAudioObjectType(r *bitReader) uint32 {
	v := r.Read(5)
	if v == 31 {
		v = r.Read(6) + 32
	}
	return v
}

func readAudioSampleRate(r *bitReader, index byte) uint32 {
	if index == 0x0f {
		return r.Read(24)
	}
	if int(index) < len(aacSampleRates) {
		return aacSampleRates[index]
	}
	return 0
}

// ParseAACSequenceHeader decodes an AudioSpecificConfig from the bytes
// following AUDIODATA's sequence-header prefix. Returns false if the
// header is too short to parse; callers treat this as "unknown" and log
// at debug level rather than failing the stream.
func ParseAACSequenceHeader(header []byte) (AACConfig, bool) {
	if len(header) < 2 {
		return AACConfig{}, false
	}
	r := newBitReader(header)
	r.Read(16) // AUDIODATA control byte + AAC packet type byte

	cfg := AACConfig{}
	cfg.ObjectType = int(readAudioObjectType(r))
	samplingIndex := byte(r.Read(4))
	cfg.SampleRate = readAudioSampleRate(r, samplingIndex)
	chanConfig := r.Read(4)
	if int(chanConfig) < len(aacChannels) {
		cfg.Channels = aacChannels[chanConfig]
	}

	if !r.ok() {
		return AACConfig{}, false
	}
	return cfg, true
}

// AACProfileName maps an object type to the short profile label the
// teacher's getAACProfileName produces.
func AACProfileName(objectType int) string {
	switch objectType {
	case 1:
		return "Main"
	case 2:
		return "LC"
	case 3:
		return "SSR"
	case 4:
		return "LTP"
	case 5:
		return "SBR"
	default:
		return ""
	}
}
