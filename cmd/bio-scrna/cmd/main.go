package cmd

import (
	"github.com/grailbio/base/log"
	"v.io/x/lib/cmdline"
)

func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-scrna",
			Short:    "Tools for preparing cellranger jobs and scoring doublets",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdInit(),
				newCmdScrublet(),
				newCmdFastqCheck(),
			},
		})
}
