// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package jobfs

import (
	"bytes"
	"text/template"
)

var jobScriptTemplate = template.Must(template.New("cmd").Parse(`#!/bin/bash

# @ initialdir = .
# @ error = ./output/{{.Sample}}.err
# @ output = ./output/{{.Sample}}.out
# @ cpus_per_task = {{.Job.CPUsPerTask}}
# @ wall_clock_limit = {{.Job.WallClockLimit}}
{{if .Job.Modules}}
{{range .Job.Modules}}module load {{.}}
{{end}}{{end}}
{{.Job.Cellranger}} count --fastqs {{.FastqDir}} --id {{.Sample}} --chemistry {{.Job.Chemistry}} --expect-cells {{.Job.ExpectCells}} --localcores {{.Job.LocalCores}} --localmem {{.Job.LocalMem}} --sample {{.Sample}} --transcriptome {{.Transcriptome}};
`))

// JobScript holds the per-sample values substituted into the job script.
type JobScript struct {
	Sample        string
	FastqDir      string
	Transcriptome string
	Job           JobOpts
}

// Render returns the job script text. The output depends only on the
// receiver, so rerunning Init rewrites identical scripts.
func (s JobScript) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := jobScriptTemplate.Execute(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
