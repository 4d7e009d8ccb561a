package cmd

import (
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scrna/encoding/fastq"
	"v.io/x/lib/cmdline"
)

func newCmdFastqCheck() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "fastq-check",
		Short:    "Check that two fastqs hold the same read pairs",
		ArgsName: "r1path r2path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("fastq-check takes r1path r2path, but got %v", argv)
		}
		n, err := fastq.CountPairs(vcontext.Background(), argv[0], argv[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "%d pairs\n", n)
		return nil
	})
	return cmd
}
