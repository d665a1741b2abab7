package artifact

import (
	"os"
	"path/filepath"
	"sort"
)

// DefaultBaseURL is where model archives are published. A file's URL is
// the base followed by its manifest path with the data/models/ prefix
// removed.
const DefaultBaseURL = "https://download.cvartel.com/facesdk/archives/artifacts/models/"

// ModelsDir is the manifest path prefix of every model file.
const ModelsDir = "data/models/"

// Unit types with non-default model layouts.
const (
	UnitLiveness = "LIVENESS_ESTIMATOR"
	UnitPose     = "POSE_ESTIMATOR"
)

// Manifest maps a unit type to the files it needs, relative to the SDK
// root. The first file is the unit's model_path; liveness takes two models
// and pose estimation a model followed by its label map.
type Manifest map[string][]string

// DefaultManifest returns the model table shipped with the SDK.
func DefaultManifest() Manifest {
	return Manifest{
		"FACE_DETECTOR":          {"data/models/face_detector/face.onnx"},
		"FACE_RECOGNIZER":        {"data/models/recognizer/recognizer.onnx"},
		"FITTER":                 {"data/models/mesh_fitter/mesh_fitter.onnx"},
		"MATCHER_MODULE":         nil,
		"HUMAN_BODY_DETECTOR":    {"data/models/body_detector/body.onnx"},
		"EMOTION_ESTIMATOR":      {"data/models/emotion_estimator/emotion.onnx"},
		"AGE_ESTIMATOR":          {"data/models/age_estimator/age_heavy.onnx"},
		"GENDER_ESTIMATOR":       {"data/models/gender_estimator/gender_heavy.onnx"},
		"MASK_ESTIMATOR":         {"data/models/mask_estimator/mask.onnx"},
		"GLASSES_ESTIMATOR":      {"data/models/glasses_estimator/glasses_v2.onnx"},
		"EYE_OPENNESS_ESTIMATOR": {"data/models/eye_openness_estimator/eye.onnx"},
		"BODY_RE_IDENTIFICATION": {"data/models/body_reidentification/re_id_heavy_model.onnx"},
		UnitLiveness: {
			"data/models/liveness_estimator/liveness_2_7.onnx",
			"data/models/liveness_estimator/liveness_4_0.onnx",
		},
		UnitPose: {
			"data/models/top_down_hpe/hpe-td.onnx",
			"data/models/top_down_hpe/label_map_keypoints.txt",
		},
	}
}

// Files returns the files unitType needs.
func (m Manifest) Files(unitType string) []string {
	return append([]string(nil), m[unitType]...)
}

// Known reports whether unitType is listed, even with no files.
func (m Manifest) Known(unitType string) bool {
	_, ok := m[unitType]
	return ok
}

// Units returns the listed unit types in sorted order.
func (m Manifest) Units() []string {
	units := make([]string, 0, len(m))
	for u := range m {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// Merge returns a copy of m with the entries of other added or replaced.
func (m Manifest) Merge(other Manifest) Manifest {
	out := make(Manifest, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Missing returns the files of unitType that do not exist under root.
func (m Manifest) Missing(root, unitType string) []string {
	var missing []string
	for _, rel := range m[unitType] {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			missing = append(missing, rel)
		}
	}
	return missing
}
