// cmd/backy is the operator-facing CLI: one-shot backup, restore,
// status, garbage-collection and verify operations against a single
// repository (spec.md §4.3, §9).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/repository"
	"github.com/flyingcircusio/backy/internal/source"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: backy backup [-tags t1,t2] <repo-dir> <source-path>")
	fmt.Fprintln(os.Stderr, "       backy restore <repo-dir> <revision> <dest-path>")
	fmt.Fprintln(os.Stderr, "       backy status <repo-dir>")
	fmt.Fprintln(os.Stderr, "       backy gc <repo-dir>")
	fmt.Fprintln(os.Stderr, "       backy verify <repo-dir> <revision> <source-path>")
	fmt.Fprintln(os.Stderr, "       backy fsck [--repair] <repo-dir>")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	verbose := flag.Bool("v", false, "verbose logging")
	debug := flag.Bool("debug", false, "debug logging")

	switch os.Args[1] {
	case "backup":
		backup(os.Args[2:], *verbose, *debug)
	case "restore":
		restore(os.Args[2:], *verbose, *debug)
	case "status":
		status(os.Args[2:], *verbose, *debug)
	case "gc":
		gc(os.Args[2:], *verbose, *debug)
	case "verify":
		verify(os.Args[2:], *verbose, *debug)
	case "fsck":
		fsck(os.Args[2:], *verbose, *debug)
	default:
		usage()
	}
}

func newLogger(verbose, debug bool) *blog.Logger {
	return blog.New(os.Stderr, verbose, debug)
}

func openRepo(dir string, log *blog.Logger) *repository.Repository {
	repo, err := repository.Open(dir, log)
	if err != nil {
		log.Fatal("opening repository %s: %v\n", dir, err)
	}
	return repo
}

func backup(args []string, verbose, debug bool) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	tagsFlag := fs.String("tags", "", "comma-separated tags for the new revision")
	fs.Parse(args)
	if fs.NArg() != 2 {
		usage()
	}
	log := newLogger(verbose, debug)
	repo := openRepo(fs.Arg(0), log)

	src := &source.File{Path: fs.Arg(1)}
	var tags []string
	if *tagsFlag != "" {
		tags = strings.Split(*tagsFlag, ",")
	}

	rev, err := repo.Backup(context.Background(), src, tags)
	if err != nil {
		log.Fatal("backup failed: %v\n", err)
	}
	fmt.Printf("%s\n", rev.UUID)
}

func restore(args []string, verbose, debug bool) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 3 {
		usage()
	}
	log := newLogger(verbose, debug)
	repo := openRepo(fs.Arg(0), log)

	history, err := repo.History()
	log.CheckError(err, "loading history: %v\n")
	rev, err := history.Select(fs.Arg(1))
	if err != nil {
		log.Fatal("selecting revision %s: %v\n", fs.Arg(1), err)
	}

	dst, err := os.OpenFile(fs.Arg(2), os.O_RDWR|os.O_CREATE, 0o640)
	log.CheckError(err, "opening destination: %v\n")
	defer dst.Close()

	if err := repo.Restore(rev, dst); err != nil {
		log.Fatal("restore failed: %v\n", err)
	}
}

func status(args []string, verbose, debug bool) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}
	log := newLogger(verbose, debug)
	repo := openRepo(fs.Arg(0), log)

	st, err := repo.Status(fs.Arg(0))
	if err != nil {
		log.Fatal("status failed: %v\n", err)
	}
	fmt.Printf("revisions: %d\n", st.RevisionCount)
	fmt.Printf("distrust_floor: %v\n", st.DistrustFloor)
	fmt.Printf("chunks_written: %d\n", st.ChunksWritten)
	fmt.Printf("chunks_reused: %d\n", st.ChunksReused)
}

func gc(args []string, verbose, debug bool) {
	fs := flag.NewFlagSet("gc", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}
	log := newLogger(verbose, debug)
	repo := openRepo(fs.Arg(0), log)

	n, err := repo.Purge()
	if err != nil {
		log.Fatal("gc failed: %v\n", err)
	}
	fmt.Printf("removed %d unreferenced chunks\n", n)
}

func verify(args []string, verbose, debug bool) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 3 {
		usage()
	}
	log := newLogger(verbose, debug)
	repo := openRepo(fs.Arg(0), log)

	history, err := repo.History()
	log.CheckError(err, "loading history: %v\n")
	rev, err := history.Select(fs.Arg(1))
	if err != nil {
		log.Fatal("selecting revision %s: %v\n", fs.Arg(1), err)
	}

	src := &source.File{Path: fs.Arg(2)}
	if err := repo.Verify(context.Background(), rev, src); err != nil {
		log.Fatal("verify failed: %v\n", err)
	}
	fmt.Println("ok")
}

func fsck(args []string, verbose, debug bool) {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	repairFlag := fs.Bool("repair", false, "reconstruct corrupt chunks from their parity sidecar")
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}
	log := newLogger(verbose, debug)
	repo := openRepo(fs.Arg(0), log)

	report, err := repo.Fsck(*repairFlag)
	if err != nil {
		log.Fatal("fsck failed: %v\n", err)
	}
	fmt.Printf("checked: %d\n", report.Checked)
	fmt.Printf("repaired: %d\n", len(report.Repaired))
	fmt.Printf("failed: %d\n", len(report.Failed))
	for _, id := range report.Failed {
		fmt.Printf("  %s\n", id)
	}
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
