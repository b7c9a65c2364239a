package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"manimate/internal/api"
	"manimate/internal/chat"
)

func runGenerate(ctx context.Context, env *runtimeEnv, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	quality := fs.String("quality", "medium", "render quality: low, medium or high")
	nowait := fs.Bool("nowait", false, "submit and print the job id without waiting for the render")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return fmt.Errorf("usage: manimate generate [-quality q] <prompt>")
	}

	if err := env.requireSession(ctx); err != nil {
		return err
	}

	if *nowait {
		jobID, err := env.Jobs.Generate(ctx, prompt, api.Quality(*quality))
		if err != nil {
			return err
		}
		fmt.Printf("Job %s submitted. Track it with `manimate status %s`.\n", jobID, jobID)
		return nil
	}

	req, err := env.Orchestrator.RequestAnimation(ctx, prompt, api.Quality(*quality))
	if err != nil {
		return err
	}
	if req.JobID != "" {
		fmt.Printf("Job %s submitted, rendering...\n", req.JobID)
	}

	<-req.Done()

	// The assistant entry paired with our prompt follows it in the
	// transcript.
	result := assistantAfter(env.Orchestrator.Messages(), req.EntryID)
	if result == nil {
		return fmt.Errorf("generation failed")
	}
	if result.Status == chat.EntryCompleted {
		if result.AnimationURL != "" {
			fmt.Printf("Done: %s\n", result.AnimationURL)
		} else {
			fmt.Println("Done.")
		}
		return nil
	}
	return fmt.Errorf("generation failed: %s", result.Content)
}

func assistantAfter(entries []chat.Entry, userEntryID string) *chat.Entry {
	seen := false
	for i := range entries {
		if entries[i].ID == userEntryID {
			seen = true
			continue
		}
		if seen && entries[i].Role == chat.RoleAssistant {
			return &entries[i]
		}
	}
	return nil
}

func runStatus(ctx context.Context, env *runtimeEnv, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: manimate status <job-id>")
	}
	if err := env.requireSession(ctx); err != nil {
		return err
	}

	job, err := env.Jobs.Status(ctx, args[0])
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func runGet(ctx context.Context, env *runtimeEnv, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: manimate get <job-id>")
	}
	if err := env.requireSession(ctx); err != nil {
		return err
	}

	job, err := env.Jobs.Get(ctx, args[0])
	if err != nil {
		return err
	}
	printJob(job)
	return nil
}

func runList(ctx context.Context, env *runtimeEnv, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 10, "page size")
	skip := fs.Int("skip", 0, "offset into the listing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := env.requireSession(ctx); err != nil {
		return err
	}

	jobs, err := env.Jobs.List(ctx, *skip, *limit)
	if err != nil {
		return err
	}

	if env.History != nil {
		if err := env.History.ReplaceJobs(ctx, jobs); err != nil {
			env.Logger.Warn().Err(err).Msg("could not refresh job cache")
		}
	}

	if len(jobs) == 0 {
		fmt.Println("No animations yet.")
		return nil
	}
	for _, job := range jobs {
		printJob(job)
	}
	return nil
}

func runDelete(ctx context.Context, env *runtimeEnv, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: manimate delete <job-id>")
	}
	if err := env.requireSession(ctx); err != nil {
		return err
	}

	if err := env.Jobs.Delete(ctx, args[0]); err != nil {
		return err
	}
	// Server delete succeeded; evicting the local cache entry is on us.
	if env.History != nil {
		if err := env.History.RemoveJob(ctx, args[0]); err != nil {
			env.Logger.Warn().Err(err).Msg("could not evict cached job")
		}
	}
	fmt.Printf("Deleted %s.\n", args[0])
	return nil
}

func runHistory(ctx context.Context, env *runtimeEnv, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of entries to show")
	search := fs.String("search", "", "filter past prompts by substring")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if env.History == nil {
		return fmt.Errorf("history cache unavailable")
	}

	if *search != "" {
		entries, err := env.History.SearchPrompts(ctx, *search, *limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("[%s] %s\n", e.CreatedAt.Format("2006-01-02 15:04"), e.Content)
		}
		return nil
	}

	entries, err := env.History.RecentEntries(ctx, *limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s: %s", e.CreatedAt.Format("2006-01-02 15:04"), e.Role, e.Content)
		if e.AnimationURL != "" {
			line += " (" + e.AnimationURL + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func printJob(job api.Job) {
	line := fmt.Sprintf("%s  %-10s", job.ID, job.Status)
	if job.Prompt != "" {
		line += "  " + job.Prompt
	}
	fmt.Println(line)
	switch job.Status {
	case api.StatusCompleted:
		if job.VideoURL != "" {
			fmt.Printf("    video: %s\n", job.VideoURL)
		}
	case api.StatusError:
		if job.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", job.ErrorMessage)
		}
	}
}
