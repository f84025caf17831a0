// Command spaghettifs is the CLI entry point: mkfs/fsck/upgrade create
// or inspect a repository directly; backup/restore move a repository's
// objects to and from a local path, an s3:// URL, or (restore-only) an
// http(s):// URL; mount is a declared stub, since serving POSIX calls
// requires a FUSE kernel binding this module does not vendor.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-git/go-git/v6/plumbing"
	"github.com/sirupsen/logrus"

	"github.com/grepro/spaghettifs/archive"
	"github.com/grepro/spaghettifs/core"
	"github.com/grepro/spaghettifs/fsck"
	"github.com/grepro/spaghettifs/logx"
	"github.com/grepro/spaghettifs/objectstore"
	"github.com/grepro/spaghettifs/session"
)

const (
	exitOK    = 0
	exitUsage = 2
)

func main() {
	verbose := flag.Bool("v", false, "verbose logging")
	quiet := flag.Bool("q", false, "quiet logging (errors only)")
	flag.BoolVar(verbose, "verbose", false, "verbose logging")
	flag.BoolVar(quiet, "quiet", false, "quiet logging (errors only)")
	flag.Parse()

	level := logrus.InfoLevel
	if *verbose {
		level = logrus.DebugLevel
	}
	logx.Configure(level, *quiet)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(exitUsage)
	}

	var err error
	switch args[0] {
	case "mkfs":
		err = cmdMkfs(args[1:])
	case "fsck":
		err = cmdFsck(args[1:])
	case "upgrade":
		err = cmdUpgrade(args[1:])
	case "backup":
		err = cmdBackup(args[1:])
	case "restore":
		err = cmdRestore(args[1:])
	case "mount":
		err = cmdMount(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		os.Exit(exitUsage)
	}

	if err == nil {
		os.Exit(exitOK)
	}
	logx.L().WithField("command", args[0]).WithError(err).Error("spaghettifs: command failed")
	fmt.Fprintf(os.Stderr, "spaghettifs: %v\n", err)
	if core.Is(err, core.NotSupported) {
		os.Exit(exitUsage)
	}
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: spaghettifs [-v|-q] <command> [args]

commands:
  mkfs REPO                 create a new, empty repository
  fsck REPO                 check namespace/inode-table consistency
  upgrade REPO              apply any pending format migrations
  backup REPO DEST          export REPO's current tree to DEST
  restore REPO SRC          create REPO from an archive read from SRC
  mount REPO MOUNTPOINT     mount REPO at MOUNTPOINT (not supported in this build)`)
}

func cmdMkfs(args []string) error {
	fs := flag.NewFlagSet("mkfs", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return core.New(core.NotSupported, "mkfs", "usage: mkfs REPO")
	}
	_, err := session.Create(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("created empty filesystem at %s\n", fs.Arg(0))
	return nil
}

func cmdFsck(args []string) error {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return core.New(core.NotSupported, "fsck", "usage: fsck REPO")
	}
	sess, err := session.Open(fs.Arg(0), false)
	if err != nil {
		return err
	}
	report, err := fsck.Check(sess)
	if err != nil {
		return err
	}
	fmt.Printf("%d directories, %d files, %d inodes checked\n", report.DirsWalked, report.FilesWalked, report.InodesTotal)
	for _, p := range report.Problems {
		if p.Kind == fsck.KindMissingInode {
			fmt.Printf("missing inode 'i%d'\n", p.InodeNumber)
		} else {
			fmt.Println(p.Message)
		}
	}
	if !report.OK() {
		fmt.Printf("done; %d errors\n", len(report.Problems))
		return fmt.Errorf("%d problems found", len(report.Problems))
	}
	fmt.Println("done; all ok")
	return nil
}

func cmdUpgrade(args []string) error {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return core.New(core.NotSupported, "upgrade", "usage: upgrade REPO")
	}
	if err := session.Upgrade(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("upgraded %s\n", fs.Arg(0))
	return nil
}

func archiveConfigFlags(fs *flag.FlagSet) *archive.Config {
	cfg := &archive.Config{}
	fs.StringVar(&cfg.AccessKey, "access-key", "", "S3 access key (optional; default credential chain otherwise)")
	fs.StringVar(&cfg.SecretKey, "secret-key", "", "S3 secret key")
	fs.StringVar(&cfg.Region, "region", "", "S3 region")
	fs.StringVar(&cfg.Endpoint, "endpoint", "", "custom S3-compatible endpoint")
	return cfg
}

func cmdBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	cfg := archiveConfigFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return core.New(core.NotSupported, "backup", "usage: backup REPO DEST")
	}
	repo, dest := fs.Arg(0), fs.Arg(1)

	sess, err := session.Open(repo, false)
	if err != nil {
		return err
	}
	commit, err := sess.Store().Commit(sess.Head())
	if err != nil {
		return err
	}
	if err := archive.Export(sess.Store(), commit.TreeHash, dest, cfg); err != nil {
		return err
	}
	fmt.Printf("backed up %s to %s\n", repo, dest)
	return nil
}

func cmdRestore(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	cfg := archiveConfigFlags(fs)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return core.New(core.NotSupported, "restore", "usage: restore REPO SRC")
	}
	repo, src := fs.Arg(0), fs.Arg(1)

	store, err := objectstore.Init(repo)
	if err != nil {
		return err
	}
	treeHash, err := archive.Import(store, src, cfg)
	if err != nil {
		return err
	}
	commitHash, err := store.NewCommit(treeHash, nil, core.CommitIdentity, "Restored from archive")
	if err != nil {
		return err
	}
	if err := store.SetRef(plumbing.NewBranchReferenceName(core.BranchMaster), commitHash); err != nil {
		return err
	}
	fmt.Printf("restored %s from %s\n", repo, src)
	return nil
}

func cmdMount(args []string) error {
	return core.New(core.NotSupported, "mount", "mount requires a FUSE binding not vendored in this build")
}
