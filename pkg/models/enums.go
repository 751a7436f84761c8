package models

// ProcessingStatus represents the terminal state of a product measurement.
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusPartial ProcessingStatus = "partial"
	StatusFailed  ProcessingStatus = "failed"
)

// Enum defaults applied when a value is missing or outside its closed set.
const (
	FrameGeometryUnknown     = "unknown"
	TransparencyOpaque       = "opaque"
	SurfaceTextureSmooth     = "smooth"
	MaterialIndeterminate    = "indeterminate"
	LensTintIndeterminate    = "indeterminate"
	TempleStyleIndeterminate = "indeterminate"
)

var frameGeometries = map[string]bool{
	"rectangular": true,
	"round":       true,
	"oval":        true,
	"aviator":     true,
	"cat-eye":     true,
	"geometric":   true,
	"irregular":   true,
	"unknown":     true,
}

var transparencies = map[string]bool{
	"opaque":           true,
	"semi-transparent": true,
	"transparent":      true,
	"mixed":            true,
}

var surfaceTextures = map[string]bool{
	"smooth":    true,
	"matte":     true,
	"glossy":    true,
	"textured":  true,
	"patterned": true,
	"metallic":  true,
}

var frameMaterials = map[string]bool{
	"metal":         true,
	"plastic":       true,
	"acetate":       true,
	"titanium":      true,
	"wood":          true,
	"mixed":         true,
	"indeterminate": true,
}

var lensTints = map[string]bool{
	"clear":         true,
	"tinted":        true,
	"gradient":      true,
	"mirrored":      true,
	"photochromic":  true,
	"gray":          true,
	"brown":         true,
	"green":         true,
	"blue":          true,
	"indeterminate": true,
}

var templeStyles = map[string]bool{
	"standard":      true,
	"spring-hinge":  true,
	"cable":         true,
	"skull":         true,
	"indeterminate": true,
}

// NormalizeFrameGeometry returns v if it is a recognized frame geometry,
// otherwise "unknown".
func NormalizeFrameGeometry(v string) string {
	if frameGeometries[v] {
		return v
	}
	return FrameGeometryUnknown
}

// NormalizeTransparency returns v if it is a recognized transparency level,
// otherwise "opaque".
func NormalizeTransparency(v string) string {
	if transparencies[v] {
		return v
	}
	return TransparencyOpaque
}

// NormalizeSurfaceTexture returns v if it is a recognized surface texture,
// otherwise "smooth".
func NormalizeSurfaceTexture(v string) string {
	if surfaceTextures[v] {
		return v
	}
	return SurfaceTextureSmooth
}

// NormalizeFrameMaterial returns v if it is a recognized frame material,
// otherwise "indeterminate".
func NormalizeFrameMaterial(v string) string {
	if frameMaterials[v] {
		return v
	}
	return MaterialIndeterminate
}

// NormalizeLensTint returns v if it is a recognized lens tint,
// otherwise "indeterminate".
func NormalizeLensTint(v string) string {
	if lensTints[v] {
		return v
	}
	return LensTintIndeterminate
}

// NormalizeTempleStyle returns v if it is a recognized temple style,
// otherwise "indeterminate".
func NormalizeTempleStyle(v string) string {
	if templeStyles[v] {
		return v
	}
	return TempleStyleIndeterminate
}
