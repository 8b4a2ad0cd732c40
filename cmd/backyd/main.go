// cmd/backyd is the long-running daemon: it loads the scheduler
// configuration, opens every job's repository and runs the scheduler
// until terminated (spec.md §4.6).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/config"
	"github.com/flyingcircusio/backy/internal/repository"
	"github.com/flyingcircusio/backy/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "/etc/backy.yaml", "path to the daemon configuration")
	verbose := flag.Bool("v", false, "verbose logging")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log := blog.New(os.Stderr, *verbose, *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		// An invalid config is fatal at startup, per spec.md §7; there is
		// no previous configuration to fall back to.
		log.Fatal("loading %s: %v\n", *configPath, err)
	}

	sched := scheduler.New(cfg.Global.WorkerLimit, cfg.Global.BackupCompletedCallback, log)

	for name, job := range cfg.Jobs {
		jobLog := log.With(map[string]interface{}{"job": name})

		repoDir := filepath.Join(cfg.Global.BaseDir, name)
		repo, err := repository.Open(repoDir, jobLog)
		if err != nil {
			log.Fatal("job %s: opening repository %s: %v\n", name, repoDir, err)
		}

		src, err := buildSource(job.Source, jobLog)
		if err != nil {
			log.Fatal("job %s: %v\n", name, err)
		}

		sched.AddJob(name, src, job.Schedule, repo, nil)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	for sig := range sigs {
		switch sig {
		case syscall.SIGHUP:
			reload(*configPath, cfg, sched, log)
		default:
			log.Print("received %v, shutting down\n", sig)
			sched.Shutdown()
			return
		}
	}
}

// reload re-parses the configuration and applies additions and removals
// to the running scheduler's job set. An invalid config is logged and
// otherwise ignored: the previously loaded configuration stays in effect
// (spec.md §7).
func reload(path string, cfg *config.Config, sched *scheduler.Scheduler, log *blog.Logger) {
	newCfg, err := config.Load(path)
	if err != nil {
		log.Error("reload: %v, keeping previous configuration\n", err)
		return
	}

	for name := range cfg.Jobs {
		if _, ok := newCfg.Jobs[name]; !ok {
			sched.RemoveJob(name)
		}
	}
	for name, job := range newCfg.Jobs {
		if _, existed := cfg.Jobs[name]; existed {
			continue
		}
		jobLog := log.With(map[string]interface{}{"job": name})
		repoDir := filepath.Join(newCfg.Global.BaseDir, name)
		repo, err := repository.Open(repoDir, jobLog)
		if err != nil {
			log.Error("reload: job %s: opening repository %s: %v\n", name, repoDir, err)
			continue
		}
		src, err := buildSource(job.Source, jobLog)
		if err != nil {
			log.Error("reload: job %s: %v\n", name, err)
			continue
		}
		sched.AddJob(name, src, job.Schedule, repo, nil)
	}

	*cfg = *newCfg
	fmt.Fprintf(os.Stderr, "reload: applied %s\n", path)
}
