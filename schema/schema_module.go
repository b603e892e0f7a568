package schema

import "path/filepath"

// ModuleDescriptor identifies one project unit resolved from its pom.xml.
type ModuleDescriptor struct {
	ArtifactID     string   `json:"artifact_id"`
	Name           string   `json:"name,omitempty"`
	Packaging      string   `json:"packaging,omitempty"`
	BaseDir        string   `json:"base_dir"`
	DescriptorPath string   `json:"descriptor_path"`
	Modules        []string `json:"modules,omitempty"`
	OutputDir      string   `json:"output_dir"`
	SourceRoots    []string `json:"source_roots"`
	SourceEncoding string   `json:"source_encoding"`
}

// DisplayName returns the declared name, falling back to the artifact id.
func (m ModuleDescriptor) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if m.ArtifactID != "" {
		return m.ArtifactID
	}
	return filepath.Base(m.BaseDir)
}

// IsAggregator reports whether the module only groups other modules.
func (m ModuleDescriptor) IsAggregator() bool {
	return m.Packaging == "pom"
}

// BundleName returns the name the module's coverage bundle is reported under.
func (m ModuleDescriptor) BundleName() string {
	if m.ArtifactID != "" {
		return m.ArtifactID
	}
	return filepath.Base(m.BaseDir)
}
