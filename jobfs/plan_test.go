package jobfs

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/scrna/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(sample, index, flowcell, lane, libFlag, laneFlag string) manifest.Row {
	return manifest.Row{
		SampleName:      sample,
		Library:         "LIB",
		Index:           index,
		Flowcell:        flowcell,
		Lane:            lane,
		LibraryPassFail: libFlag,
		LanePassFail:    laneFlag,
	}
}

func TestPlanSampleLink(t *testing.T) {
	s := manifest.Sample{Name: "S2", Rows: []manifest.Row{
		row("S 2", "TTGG", "FC3", "1", "pass", "fail"),
		row("S 2", "TTGG", "FC1", "3", "pass", "pass"),
	}}
	p, err := PlanSample(s, "/jobs", "/fastq")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Cardinality())
	assert.Equal(t, Layout{Sample: "S2", Dir: "/jobs/S2"}, p.Layout)
	assert.Equal(t, Materialization{
		Read:    R1,
		Kind:    Link,
		Sources: []string{"/fastq/FC1/3/fastq/FC1_3_TTGG_1.fastq.gz"},
		Target:  "/jobs/S2/fastq/S2_S1_L001_R1_001.fastq.gz",
	}, p.Materializations[0])
	assert.Equal(t, Materialization{
		Read:    R2,
		Kind:    Link,
		Sources: []string{"/fastq/FC1/3/fastq/FC1_3_TTGG_2.fastq.gz"},
		Target:  "/jobs/S2/fastq/S2_S1_L001_R2_001.fastq.gz",
	}, p.Materializations[1])
}

func TestPlanSampleConcat(t *testing.T) {
	s := manifest.Sample{Name: "S1", Rows: []manifest.Row{
		row("S1", "ACGT", "FC1", "1", "pass", "pass"),
		row("S1", "ACGT", "FC9", "4", "fail", "pass"),
		row("S1", "ACGT", "FC2", "2", "pass", "pass"),
	}}
	p, err := PlanSample(s, "/jobs", "/fastq")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Cardinality())
	for i, read := range ReadDirections {
		m := p.Materializations[i]
		assert.Equal(t, read, m.Read)
		assert.Equal(t, Concat, m.Kind)
		assert.Equal(t, []string{
			FastqPath("/fastq", "FC1", "1", "ACGT", read),
			FastqPath("/fastq", "FC2", "2", "ACGT", read),
		}, m.Sources)
	}
	assert.Equal(t, "/jobs/S1/fastq/S1_S1_L001_R2_001.fastq.gz", p.Materializations[1].Target)
}

func TestPlanSampleNoQualifyingRows(t *testing.T) {
	s := manifest.Sample{Name: "S3", Rows: []manifest.Row{
		row("S3", "GGGG", "FC1", "4", "fail", "pass"),
		row("S3", "GGGG", "FC1", "5", "pass", "Pass"),
	}}
	_, err := PlanSample(s, "/jobs", "/fastq")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotExist, err))
}

func TestLayout(t *testing.T) {
	l := NewLayout("/jobs", "S1")
	assert.Equal(t, "/jobs/S1/fastq", l.FastqDir())
	assert.Equal(t, "/jobs/S1/output", l.OutputDir())
	assert.Equal(t, "/jobs/S1/S1.cmd", l.Script())
	assert.Equal(t, []string{"/jobs/S1", "/jobs/S1/fastq", "/jobs/S1/output"}, l.Dirs())
	assert.Equal(t, "R2", R2.String())
	assert.Equal(t, "concat", Concat.String())
}

func TestResolveReference(t *testing.T) {
	path, err := DefaultReferences.Resolve("human")
	require.NoError(t, err)
	assert.Equal(t, "/scratch/groups/hheyn/data/reference/refdata-gex-GRCh38-2020-A/", path)
	path, err = DefaultReferences.Resolve("mouse")
	require.NoError(t, err)
	assert.Equal(t, "/scratch/groups/hheyn/data/reference/refdata-gex-mm10-2020-A/", path)

	_, err = DefaultReferences.Resolve("zebrafish")
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err))
	assert.Contains(t, err.Error(), "human, mouse")
}
