// Package classify decides whether an uploaded image is a standings
// screenshot before the expensive extraction call runs. Classification is
// heuristic: three independent sub-scores over the decoded pixels, fused with
// fixed weights. Curated channels can bypass classification entirely.
package classify

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/bracketworks/standings-cli/internal/config"
)

// Classification methods reported in Result.Method.
const (
	MethodBypass    = "bypass"
	MethodHeuristic = "heuristic"
)

// Sub-score fusion weights.
const (
	weightBasic  = 0.40
	weightLayout = 0.40
	weightColor  = 0.20
)

// Images wider than this are downscaled before pixel analysis; the
// heuristics are ratio-based and survive resampling.
const maxAnalysisWidth = 512

// Dimension and aspect bounds for a plausible standings capture.
const (
	minWidth  = 400
	minHeight = 300
	maxDim    = 8192
	minAspect = 1.2
	maxAspect = 2.6
)

// Empirically tuned acceptable bands for the layout and color heuristics.
// The standings screen is a dark panel with rows of light text and gold
// rank/name accents.
const (
	darkLumCutoff   = 0.35
	darkRatioLo     = 0.45
	darkRatioHi     = 0.85
	edgeDeltaCutoff = 0.25
	edgeRatioLo     = 0.02
	edgeRatioHi     = 0.20
	brightnessLo    = 0.15
	brightnessHi    = 0.60
	goldHueLo       = 35.0
	goldHueHi       = 55.0
	goldSatMin      = 0.30
	goldValMin      = 0.50
	goldFullcredit  = 0.01
)

// SubScores carries the individual heuristic scores for diagnostics.
type SubScores struct {
	Basic  float64 `json:"basic"`
	Layout float64 `json:"layout"`
	Color  float64 `json:"color"`
}

// Result is the classifier's verdict on one image.
type Result struct {
	IsStandings bool      `json:"is_standings"`
	Confidence  float64   `json:"confidence"`
	Method      string    `json:"method"`
	SubScores   SubScores `json:"sub_scores"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Classifier scores images against the standings-screen heuristics.
type Classifier struct {
	threshold float64
	skip      bool
	trusted   map[string]bool
}

// New builds a classifier from configuration.
func New(cfg config.ClassifyConfig) *Classifier {
	trusted := make(map[string]bool, len(cfg.TrustedChannels))
	for _, ch := range cfg.TrustedChannels {
		trusted[ch] = true
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 0.70
	}
	return &Classifier{threshold: threshold, skip: cfg.Skip, trusted: trusted}
}

// Classify scores the image bytes. Trusted channels (and globally disabled
// classification) bypass pixel inspection: those channels are curated by
// policy, not by source. Decode failures never return an error; they score
// zero with the failure recorded.
func (c *Classifier) Classify(data []byte, channelID string) Result {
	if c.skip || c.trusted[channelID] {
		return Result{IsStandings: true, Confidence: 1.0, Method: MethodBypass}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{Method: MethodHeuristic, Error: err.Error()}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	basic := scoreBasic(width, height)
	layout, color := scorePixels(downscale(img))

	confidence := weightBasic*basic + weightLayout*layout + weightColor*color
	return Result{
		IsStandings: confidence >= c.threshold,
		Confidence:  confidence,
		Method:      MethodHeuristic,
		SubScores:   SubScores{Basic: basic, Layout: layout, Color: color},
		Width:       width,
		Height:      height,
	}
}

// downscale resamples wide images to analysis size.
func downscale(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxAnalysisWidth {
		scale := float64(maxAnalysisWidth) / float64(w)
		h = int(math.Round(float64(h) * scale))
		if h < 1 {
			h = 1
		}
		w = maxAnalysisWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// scoreBasic checks dimensions and aspect ratio.
func scoreBasic(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 0
	}

	dims := 1.0
	if width < minWidth || height < minHeight || width > maxDim || height > maxDim {
		dims = 0
	}

	aspect := float64(width) / float64(height)
	return 0.5*dims + 0.5*bandScore(aspect, minAspect, maxAspect)
}

// scorePixels computes the layout and color sub-scores in one pass.
func scorePixels(img *image.RGBA) (layout, color float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	total := w * h
	if total == 0 {
		return 0, 0
	}

	var dark, edges, hPairs, gold int
	var lumSum float64

	for y := 0; y < h; y++ {
		prevLum := -1.0
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r := float64(img.Pix[i]) / 255
			g := float64(img.Pix[i+1]) / 255
			bl := float64(img.Pix[i+2]) / 255

			lum := 0.299*r + 0.587*g + 0.114*bl
			lumSum += lum
			if lum < darkLumCutoff {
				dark++
			}
			if prevLum >= 0 {
				hPairs++
				if math.Abs(lum-prevLum) > edgeDeltaCutoff {
					edges++
				}
			}
			prevLum = lum

			hue, sat, val := rgbToHSV(r, g, bl)
			if hue >= goldHueLo && hue <= goldHueHi && sat >= goldSatMin && val >= goldValMin {
				gold++
			}
		}
	}

	darkRatio := float64(dark) / float64(total)
	edgeRatio := 0.0
	if hPairs > 0 {
		edgeRatio = float64(edges) / float64(hPairs)
	}
	layout = 0.5*bandScore(darkRatio, darkRatioLo, darkRatioHi) +
		0.5*bandScore(edgeRatio, edgeRatioLo, edgeRatioHi)

	brightness := lumSum / float64(total)
	goldRatio := float64(gold) / float64(total)
	goldScore := goldRatio / goldFullcredit
	if goldScore > 1 {
		goldScore = 1
	}
	color = 0.6*bandScore(brightness, brightnessLo, brightnessHi) + 0.4*goldScore
	return layout, color
}

// bandScore is 1.0 inside [lo, hi] and decays linearly to 0 over one band
// width outside it.
func bandScore(x, lo, hi float64) float64 {
	if x >= lo && x <= hi {
		return 1
	}
	width := hi - lo
	if width <= 0 {
		return 0
	}
	var d float64
	if x < lo {
		d = lo - x
	} else {
		d = x - hi
	}
	s := 1 - d/width
	if s < 0 {
		return 0
	}
	return s
}

// rgbToHSV converts normalized RGB to hue (degrees), saturation, value.
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max
	delta := max - min
	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}
	switch max {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}
