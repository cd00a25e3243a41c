package imagespec

// =============================================================================
// ImageSpec - Main Type
// =============================================================================

// ImageSpec is a parsed image build definition. It captures the small subset
// of Dockerfile semantics an app needs: a base image, files to copy, install
// and setup commands, environment, one exposed port, and the start command.
type ImageSpec struct {
	Base    string            `yaml:"base" json:"base"`
	Workdir string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	Copy    []CopyEntry       `yaml:"copy,omitempty" json:"copy,omitempty"`
	Run     []string          `yaml:"run,omitempty" json:"run,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Port    int               `yaml:"port,omitempty" json:"port,omitempty"`
	Command []string          `yaml:"command" json:"command"`
}

// CopyEntry is one COPY instruction: a source path inside the build context
// and a destination inside the image.
type CopyEntry struct {
	Src  string `yaml:"src" json:"src"`
	Dest string `yaml:"dest" json:"dest"`
}
