package codecbits

// AVCConfig is the subset of an AVCDecoderConfigurationRecord + first
// SPS worth surfacing: coded dimensions and profile/level.
type AVCConfig struct {
	Width   uint32
	Height  uint32
	Profile byte
	Level   float32
}

var avcChromaProfiles = map[byte]bool{
	100: true, 110: true, 122: true, 244: true,
	44: true, 83: true, 86: true, 118: true,
}

// ParseAVCSequenceHeader decodes width/height/profile/level from an AVC
// sequence header (AVCDecoderConfigurationRecord + embedded SPS),
// grounded in the teacher's readH264SpecificConfig. Only the first SPS
// is parsed; PPS and any further SPS are ignored, matching the
// teacher's scope.
func ParseAVCSequenceHeader(header []byte) (AVCConfig, bool) {
	if len(header) < 11 {
		return AVCConfig{}, false
	}
	r := newBitReader(header)
	r.Read(48) // FLV AVCVIDEOPACKET prefix (5 bytes) + configurationVersion

	cfg := AVCConfig{}
	cfg.Profile = byte(r.Read(8))
	r.Read(8) // profile compatibility
	cfg.Level = float32(r.Read(8))

	r.Read(8) // reserved/lengthSizeMinusOne
	numSPS := byte(r.Read(8)) & 0x1f
	if numSPS == 0 {
		return AVCConfig{}, false
	}

	r.Read(16) // SPS NAL unit length
	nalType := r.Read(8)
	if nalType != 0x67 {
		return AVCConfig{}, false
	}

	profileIDC := r.Read(8)
	r.Read(8) // constraint flags + reserved
	r.Read(8) // level idc (already have cfg.Level from the config record)
	r.ReadGolomb() // seq_parameter_set_id

	if avcChromaProfiles[byte(profileIDC)] {
		chromaFormatIDC := r.ReadGolomb()
		if chromaFormatIDC == 3 {
			r.Read(1)
		}
		r.ReadGolomb() // bit_depth_luma_minus8
		r.ReadGolomb() // bit_depth_chroma_minus8
		r.Read(1)      // qpprime_y_zero_transform_bypass_flag
		if r.Read(1) != 0 {
			if chromaFormatIDC == 3 {
				r.Read(12)
			} else {
				r.Read(8)
			}
		}
	}

	r.ReadGolomb() // log2_max_frame_num_minus4
	picOrderCntType := r.ReadGolomb()
	switch picOrderCntType {
	case 0:
		r.ReadGolomb()
	case 1:
		r.Read(1)
		r.ReadGolomb()
		r.ReadGolomb()
		numRefFrames := r.ReadGolomb()
		for i := uint32(0); i < numRefFrames && r.ok(); i++ {
			r.ReadGolomb()
		}
	}

	r.ReadGolomb() // max_num_ref_frames
	r.Read(1)      // gaps_in_frame_num_value_allowed_flag

	widthInMBs := r.ReadGolomb()
	heightInMapUnits := r.ReadGolomb()
	frameMBSOnly := r.Read(1)
	if frameMBSOnly == 0 {
		r.Read(1)
	}
	r.Read(1) // direct_8x8_inference_flag

	var cropLeft, cropRight, cropTop, cropBottom uint32
	if r.Read(1) != 0 {
		cropLeft = r.ReadGolomb()
		cropRight = r.ReadGolomb()
		cropTop = r.ReadGolomb()
		cropBottom = r.ReadGolomb()
	}

	if !r.ok() {
		return AVCConfig{}, false
	}

	cfg.Level = cfg.Level / 10.0
	cfg.Width = (widthInMBs+1)*16 - (cropLeft+cropRight)*2
	cfg.Height = (2-frameMBSOnly)*(heightInMapUnits+1)*16 - (cropTop+cropBottom)*2
	return cfg, true
}

// AVCProfileName maps a profile_idc byte to its common name.
func AVCProfileName(profileIDC byte) string {
	switch profileIDC {
	case 66:
		return "Baseline"
	case 77:
		return "Main"
	case 88:
		return "Extended"
	case 100:
		return "High"
	case 110:
		return "High 10"
	case 122:
		return "High 4:2:2"
	case 244:
		return "High 4:4:4"
	default:
		return ""
	}
}
