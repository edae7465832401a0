package codecbits

// HEVCConfig surfaces the general profile/tier/level fields stored
// directly in an HEVCDecoderConfigurationRecord header. Unlike AVC,
// width/height require walking the embedded SPS's full VUI/PTL
// structure (HEVCParseSPS in the teacher); that depth is not carried
// over here — this stays profile/level only, logged for diagnostics.
type HEVCConfig struct {
	ProfileIDC uint32
	TierFlag   uint32
	LevelIDC   uint32
}

// ParseHEVCSequenceHeader reads the fixed-position general profile/
// tier/level fields from an HEVC sequence header (a five-byte video
// packet prefix followed by an HEVCDecoderConfigurationRecord).
func ParseHEVCSequenceHeader(header []byte) (HEVCConfig, bool) {
	if len(header) < 13 {
		return HEVCConfig{}, false
	}
	r := newBitReader(header)
	r.Read(40) // AVCVIDEOPACKET-style prefix (5 bytes) preceding the record
	r.Read(8)  // configurationVersion

	cfg := HEVCConfig{}
	r.Read(2) // general_profile_space
	cfg.TierFlag = r.Read(1)
	cfg.ProfileIDC = r.Read(5)
	r.Read(32) // general_profile_compatibility_flags
	r.Read(48) // general_constraint_indicator_flags
	cfg.LevelIDC = r.Read(8)

	if !r.ok() {
		return HEVCConfig{}, false
	}
	return cfg, true
}

// HEVCProfileName maps general_profile_idc to its common name.
func HEVCProfileName(profileIDC uint32) string {
	switch profileIDC {
	case 1:
		return "Main"
	case 2:
		return "Main 10"
	case 3:
		return "Main Still Picture"
	default:
		return ""
	}
}
