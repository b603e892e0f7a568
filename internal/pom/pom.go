// Package pom reads Maven project descriptors and discovers multi-module layouts.
package pom

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/net/html/charset"
)

// FileName is the descriptor file name inside a module directory.
const FileName = "pom.xml"

// Project is the subset of a pom.xml that module discovery and reporting need.
type Project struct {
	XMLName    xml.Name   `xml:"project"`
	GroupID    string     `xml:"groupId"`
	ArtifactID string     `xml:"artifactId"`
	Version    string     `xml:"version"`
	Name       string     `xml:"name"`
	Packaging  string     `xml:"packaging"`
	Parent     *Parent    `xml:"parent"`
	Modules    []string   `xml:"modules>module"`
	Properties Properties `xml:"properties"`
	Build      Build      `xml:"build"`
}

// Parent is the parent reference of a project.
type Parent struct {
	GroupID      string  `xml:"groupId"`
	ArtifactID   string  `xml:"artifactId"`
	Version      string  `xml:"version"`
	RelativePath *string `xml:"relativePath"` // nil means the default ../pom.xml
}

// Build holds the directory layout of a project.
type Build struct {
	Directory       string `xml:"directory"`
	OutputDirectory string `xml:"outputDirectory"`
	SourceDirectory string `xml:"sourceDirectory"`
}

// Properties holds user properties declared in <properties>.
type Properties map[string]string

// UnmarshalXML reads arbitrary child elements as key/value pairs.
func (p *Properties) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	props := Properties{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return err
			}
			props[t.Name.Local] = strings.TrimSpace(value)
		case xml.EndElement:
			*p = props
			return nil
		}
	}
}

// Matches reports whether candidate is the project this parent reference names.
// The group id is compared only when both sides declare one.
func (p *Parent) Matches(candidate *Project) bool {
	if strings.TrimSpace(p.ArtifactID) != candidate.ArtifactID {
		return false
	}
	group := strings.TrimSpace(p.GroupID)
	return group == "" || candidate.EffectiveGroupID() == "" || group == candidate.EffectiveGroupID()
}

// Coordinates returns groupId:artifactId for log messages.
func (p *Parent) Coordinates() string {
	return strings.TrimSpace(p.GroupID) + ":" + strings.TrimSpace(p.ArtifactID)
}

// ParentRelativePath returns the declared parent location, or the Maven default.
func (p *Project) ParentRelativePath() string {
	if p.Parent == nil {
		return ""
	}
	if p.Parent.RelativePath == nil {
		return "../" + FileName
	}
	return strings.TrimSpace(*p.Parent.RelativePath)
}

// EffectiveGroupID returns the group id, inherited from the parent when absent.
func (p *Project) EffectiveGroupID() string {
	if p.GroupID == "" && p.Parent != nil {
		return p.Parent.GroupID
	}
	return p.GroupID
}

// EffectiveVersion returns the version, inherited from the parent when absent.
func (p *Project) EffectiveVersion() string {
	if p.Version == "" && p.Parent != nil {
		return p.Parent.Version
	}
	return p.Version
}

// Read parses the descriptor at path.
func Read(fs afero.Fs, path string) (*Project, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a descriptor, honoring the declared XML charset.
func Parse(r io.Reader) (*Project, error) {
	var p Project
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("malformed descriptor: %w", err)
	}
	if strings.TrimSpace(p.ArtifactID) == "" {
		return nil, fmt.Errorf("malformed descriptor: missing artifactId")
	}
	p.ArtifactID = strings.TrimSpace(p.ArtifactID)
	p.Packaging = strings.TrimSpace(p.Packaging)
	if p.Packaging == "" {
		p.Packaging = "jar"
	}
	for i, m := range p.Modules {
		p.Modules[i] = strings.TrimSpace(m)
	}
	return &p, nil
}
