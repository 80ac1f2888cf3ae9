// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package version defines version information.
package version

import (
	"fmt"
	"io"
	"runtime"
	"text/template"
)

var (
	// Name is set at build time.
	Name = "poolfs-mount"
	// Tag is set at build time.
	Tag string
	// SHA is set at build time.
	SHA string
	// Built is set at build time.
	Built string
)

const versionTemplate = `{{ .Name }}:
	Tag:         {{ .Tag }}
	SHA:         {{ .SHA }}
	Built:       {{ .Built }}
	Go version:  {{ .GoVersion }}
	OS/Arch:     {{ .Os }}/{{ .Arch }}
`

// Version contains verbose version information.
type Version struct {
	Name      string
	Tag       string
	SHA       string
	Built     string
	GoVersion string
	Os        string
	Arch      string
}

// NewVersion collects version information for the running binary.
func NewVersion() Version {
	return Version{
		Name:      Name,
		Tag:       Tag,
		SHA:       SHA,
		Built:     Built,
		GoVersion: runtime.Version(),
		Os:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// WriteLongVersion writes verbose version information to w.
func WriteLongVersion(w io.Writer) error {
	tmpl, err := template.New("version").Parse(versionTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, NewVersion())
}

// Short returns the short version string consisting of name and tag.
func Short() string {
	return fmt.Sprintf("%s %s", Name, Tag)
}
