package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/tunivo/jobsync/app/project"
	"github.com/tunivo/jobsync/app/server"
	"github.com/tunivo/jobsync/app/tracker"
)

// stdout used for command output, logs go to stderr or file
var stdout io.Writer = os.Stdout

type loginCmd struct {
	Args struct {
		Email string `positional-arg-name:"EMAIL"`
	} `positional-args:"yes" required:"yes"`
}

// Execute logs in and persists returned identity
func (c *loginCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		ident, err := a.session.Login(appCtx, strings.TrimSpace(c.Args.Email))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "logged in as %s, plan %s\n", ident.Email, ident.Plan)
		return nil
	})
}

type logoutCmd struct{}

// Execute clears persisted identity
func (c *logoutCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		if err := a.session.Logout(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "logged out, using %s\n", a.session.Email())
		return nil
	})
}

type createCmd struct {
	Audio      string `short:"a" long:"audio" required:"true" description:"audio file"`
	Title      string `short:"t" long:"title" description:"project title, audio file name if not set"`
	Prompt     string `short:"p" long:"prompt" description:"visual prompt"`
	Lyrics     string `short:"l" long:"lyrics" description:"lyrics text"`
	LyricsFile string `long:"lyrics-file" description:"read lyrics from file"`
	Mode       string `short:"m" long:"mode" choice:"fast" choice:"high" default:"fast" description:"generation mode"`
	Aspect     string `long:"aspect" choice:"16:9" choice:"9:16" choice:"1:1" default:"16:9" description:"aspect ratio"`
	Transcribe bool   `long:"transcribe" description:"transcribe lyrics from audio"`
	Watch      bool   `short:"w" long:"watch" description:"watch status after creation"`
}

// Execute uploads audio and creates a job
func (c *createCmd) Execute(_ []string) error {
	lyrics := c.Lyrics
	if c.LyricsFile != "" {
		data, err := os.ReadFile(c.LyricsFile)
		if err != nil {
			return fmt.Errorf("can't read lyrics file: %w", err)
		}
		lyrics = string(data)
	}

	fh, err := os.Open(c.Audio)
	if err != nil {
		return fmt.Errorf("can't open audio file: %w", err)
	}
	defer fh.Close()

	return withApp(func(a *application) error {
		prj, err := a.tracker.Create(appCtx, tracker.CreateRequest{
			Audio:          fh,
			AudioName:      filepath.Base(c.Audio),
			Title:          c.Title,
			Prompt:         c.Prompt,
			Lyrics:         lyrics,
			Mode:           project.Mode(c.Mode),
			Aspect:         project.Aspect(c.Aspect),
			AutoTranscribe: c.Transcribe,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created %s %q, %s\n", prj.ID, prj.Title, prj.Status)
		if !c.Watch {
			return nil
		}
		return watch(a.tracker, prj.ID)
	})
}

type listCmd struct{}

// Execute prints local projects, newest first
func (c *listCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		printList(stdout, a.tracker.List())
		return nil
	})
}

type showCmd struct {
	Format  string `short:"f" long:"format" choice:"text" choice:"json" choice:"yaml" default:"text" description:"output format"`
	Refresh bool   `short:"r" long:"refresh" description:"fetch status from api before showing"`
	Args    struct {
		ID string `positional-arg-name:"ID"`
	} `positional-args:"yes" required:"yes"`
}

// Execute prints project details
func (c *showCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		if c.Refresh {
			if _, err := a.tracker.Fetch(appCtx, c.Args.ID); err != nil {
				if _, gerr := a.tracker.Get(c.Args.ID); gerr != nil {
					return gerr
				}
				log.Printf("[WARN] can't refresh %s, showing cached status, %v", c.Args.ID, err)
			}
		}
		prj, err := a.tracker.Get(c.Args.ID)
		if err != nil {
			return err
		}
		return printProject(stdout, prj, c.Format)
	})
}

type watchCmd struct {
	Args struct {
		ID string `positional-arg-name:"ID"`
	} `positional-args:"yes" required:"yes"`
}

// Execute polls project until terminal status or interrupt
func (c *watchCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		return watch(a.tracker, c.Args.ID)
	})
}

type deleteCmd struct {
	Args struct {
		IDs []string `positional-arg-name:"ID"`
	} `positional-args:"yes" required:"yes"`
}

// Execute deletes projects locally, backend jobs are not affected
func (c *deleteCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		for _, id := range c.Args.IDs {
			if err := a.tracker.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "deleted %s\n", id)
		}
		return nil
	})
}

type serveCmd struct {
	Listen      string  `long:"listen" env:"JOBSYNC_LISTEN" default:"127.0.0.1:8080" description:"listen address"`
	Resume      bool    `long:"resume" env:"JOBSYNC_RESUME" description:"resume polling of unfinished projects on start"`
	MutateLimit float64 `long:"limit" env:"JOBSYNC_LIMIT" default:"10" description:"max mutating requests per second"`
}

// Execute runs read-model server until interrupt
func (c *serveCmd) Execute(_ []string) error {
	return withApp(func(a *application) error {
		srv, err := server.New(server.Config{Tracker: a.tracker, Identity: a.session, Version: revision,
			MutateLimit: c.MutateLimit})
		if err != nil {
			return err
		}
		if c.Resume {
			a.tracker.Resume(appCtx)
		}
		return srv.Run(appCtx, c.Listen)
	})
}

// watch prints every view change until the channel is closed
func watch(trk *tracker.Tracker, id string) error {
	ch, err := trk.Subscribe(appCtx, id)
	if err != nil {
		return err
	}
	var last string
	for v := range ch {
		if line := statusLine(v.Project); line != last {
			fmt.Fprintln(stdout, line)
			last = line
		}
		if v.Err != nil {
			log.Printf("[WARN] %v", v.Err)
		}
	}
	if appCtx.Err() != nil {
		return nil
	}
	prj, err := trk.Get(id)
	if err != nil {
		return err
	}
	if dl := prj.Download(); dl != "" {
		fmt.Fprintf(stdout, "download: %s\n", dl)
	}
	return nil
}

func statusLine(p project.Project) string {
	step := project.StepFor(p.Status, p.Progress)
	return fmt.Sprintf("%s %s %d%% [%d/%d %s] %s", p.ID, project.PrettyStatus(p.Status), project.Percent(p.Progress),
		step+1, len(project.Steps), project.Steps[step], p.Message)
}

func printList(w io.Writer, projects []project.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "no projects")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPROGRESS\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n", p.ID, p.Title, project.PrettyStatus(p.Status), project.Percent(p.Progress),
			p.Created().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func printProject(w io.Writer, p project.Project, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "yaml":
		return printYAML(w, p)
	}

	step := project.StepFor(p.Status, p.Progress)
	fmt.Fprintf(w, "%s (%s)\n", p.Title, p.ID)
	fmt.Fprintf(w, "status:   %s %d%%, step %d/%d %s\n", project.PrettyStatus(p.Status), project.Percent(p.Progress),
		step+1, len(project.Steps), project.Steps[step])
	fmt.Fprintf(w, "message:  %s\n", p.Message)
	fmt.Fprintf(w, "mode:     %s, aspect %s, transcribe %v\n", p.Mode, p.Aspect, p.AutoTranscribe)
	fmt.Fprintf(w, "owner:    %s, plan %s\n", p.UserEmail, p.Plan)
	fmt.Fprintf(w, "created:  %s\n", p.Created().Format(time.DateTime))
	if p.Prompt != "" {
		fmt.Fprintf(w, "prompt:   %s\n", p.Prompt)
	}
	if dl := p.Download(); dl != "" {
		fmt.Fprintf(w, "download: %s\n", dl)
	}

	sc := p.Scorecard()
	if len(sc.Iterations) == 0 {
		return nil
	}
	fmt.Fprintln(w, "scorecard:")
	for i, it := range sc.Iterations {
		fmt.Fprintf(w, "  #%d total %.0f, relevance %.0f, continuity %.0f, variety %.0f, pacing %.0f, technical %.0f\n",
			i+1, it.Total, it.Relevance, it.Continuity, it.Variety, it.Pacing, it.Technical)
	}
	for _, issue := range sc.Issues {
		fmt.Fprintf(w, "  - segment %d: %s (%s)\n", issue.SegmentIndex, issue.Reason, issue.Severity)
	}
	return nil
}

// printYAML renders json representation as yaml, keeping json field names and order
func printYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("can't marshal: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("can't convert to yaml: %w", err)
	}
	plainStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("can't write yaml: %w", err)
	}
	return enc.Close()
}

// plainStyle drops json flow and quoting styles, encoder quotes ambiguous scalars itself
func plainStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		plainStyle(c)
	}
}
