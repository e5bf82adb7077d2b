// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

// DefaultHWBitDepth maximum sample bit depth of the decode hardware.
const DefaultHWBitDepth = 10

// Requirements what a sequence parameter set demands from a channel.
type Requirements struct {
	BitDepthLuma   int
	BitDepthChroma int
	// MaxBitDepth bit depth the profile may reach.
	MaxBitDepth int
	Level       int
	Chroma      ChromaMode
	Cropped     Dimension
	Sequence    SequenceMode
}

// CheckCompatible checks the requirements of a SPS against the declared
// stream settings. Unset settings always pass; the bit depths, including the
// one the profile may reach, must also fit the hardware.
func CheckCompatible(req Requirements, s StreamSettings, hwBitDepth int) error {
	if hwBitDepth <= 0 {
		hwBitDepth = DefaultHWBitDepth
	}
	if req.BitDepthLuma > hwBitDepth || req.BitDepthChroma > hwBitDepth {
		return Incompatiblef("bit depth %d/%d exceeds hardware %d",
			req.BitDepthLuma, req.BitDepthChroma, hwBitDepth)
	}

	if s.BitDepth > 0 && (s.BitDepth < req.BitDepthLuma || s.BitDepth < req.BitDepthChroma) {
		return Incompatiblef("bit depth %d/%d above setting %d",
			req.BitDepthLuma, req.BitDepthChroma, s.BitDepth)
	}
	// profile 可达到的位深也必须由硬件支持
	if req.MaxBitDepth > hwBitDepth {
		return Incompatiblef("profile bit depth %d exceeds hardware %d", req.MaxBitDepth, hwBitDepth)
	}

	if s.Level > 0 && s.Level < req.Level {
		return Incompatiblef("level %d above setting %d", req.Level, s.Level)
	}

	if s.Chroma != ChromaUnset && s.Chroma < req.Chroma {
		return Incompatiblef("chroma mode %d above setting %d", req.Chroma, s.Chroma)
	}

	if s.Dim.Width > 0 && s.Dim.Width < req.Cropped.Width {
		return Incompatiblef("width %d above setting %d", req.Cropped.Width, s.Dim.Width)
	}
	if s.Dim.Height > 0 && s.Dim.Height < req.Cropped.Height {
		return Incompatiblef("height %d above setting %d", req.Cropped.Height, s.Dim.Height)
	}

	if req.Sequence == SequenceMixed {
		return Incompatiblef("mixed progressive and interlaced source")
	}
	if s.Sequence != SequenceUnknown && s.Sequence != SequenceMixed &&
		req.Sequence != SequenceUnknown && s.Sequence != req.Sequence {
		return Incompatiblef("sequence mode %d differs from setting %d", req.Sequence, s.Sequence)
	}
	return nil
}
