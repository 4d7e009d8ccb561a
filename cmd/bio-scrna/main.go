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

/*
bio-scrna prepares cellranger jobs and scores doublets of single-cell RNA-seq
libraries.

  bio-scrna init -reference human -manifest info.txt

creates jobs/<sample>/ for every sample of the LIMS manifest, with the
sample's fastqs under the names cellranger expects and a job script.

  bio-scrna scrublet SUBPROJECT

scores the barcodes of the subproject's filtered cellranger matrix.

  bio-scrna fastq-check R1.fastq.gz R2.fastq.gz

verifies that two fastqs hold the same read pairs.
*/
package main

import "github.com/grailbio/scrna/cmd/bio-scrna/cmd"

func main() {
	cmd.Run()
}
