package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finops-claw-gang/genui/internal/tasks"
)

func newTasksCmd(opts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List generation tasks still running for a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			inflight, err := c.ListInFlight(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			printInFlight(cmd.OutOrStdout(), inflight)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var q tasks.HistoryQuery
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past generations of a session interaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			groups, err := c.History(cmd.Context(), q)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), groups)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.SessionID, "session", "", "session id (required)")
	cmd.Flags().StringVar(&q.InteractionID, "interaction", "", "interaction id (required)")
	cmd.Flags().StringVar(&q.ContentKind, "kind", "", "content kind: image, video or audio")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("interaction")
	return cmd
}

func newFollowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "follow TASK_ID",
		Short: "Stream a task's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(cmd)
			if err != nil {
				return err
			}
			events, err := c.StreamTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return followEvents(cmd.OutOrStdout(), events)
		},
	}
}

func printInFlight(w io.Writer, inflight []tasks.InFlightTask) {
	if len(inflight) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no tasks in flight"))
		return
	}
	for _, t := range inflight {
		line := fmt.Sprintf("%s  %s  %s/%s", t.TaskID, t.Status, t.Payload.Provider, t.Payload.PromptID)
		if t.Progress != nil {
			line += dimStyle.Render(fmt.Sprintf("  %s (%s)", t.Progress.Message, elapsed(t.Progress.ElapsedMs)))
		}
		fmt.Fprintln(w, line)
	}
}

func printHistory(w io.Writer, groups []tasks.HistoryGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no generations"))
		return
	}
	for _, g := range groups {
		fmt.Fprintln(w, kindStyle.Render(g.Provider+"/"+g.PromptID))
		for _, gen := range g.Generations {
			fmt.Fprintf(w, "  %s  %s\n", gen.CreatedAt.Format(time.RFC3339), dimStyle.Render(gen.MetadataID))
			for _, u := range gen.URLs {
				fmt.Fprintln(w, "    "+u)
			}
		}
	}
}

// followEvents prints events until a terminal one. A failed task is
// reported as an error.
func followEvents(w io.Writer, events <-chan tasks.Event) error {
	for ev := range events {
		switch ev.Type {
		case tasks.EventProgress:
			if ev.Progress != nil {
				fmt.Fprintf(w, "%s  %s\n", dimStyle.Render(elapsed(ev.Progress.ElapsedMs)), ev.Progress.Message)
			}
		case tasks.EventComplete:
			fmt.Fprintln(w, kindStyle.Render("complete"))
			if ev.Result != nil {
				fmt.Fprintln(w, strings.Join(ev.Result.URLs, "\n"))
			}
			return nil
		case tasks.EventError:
			return errors.New(ev.Error)
		}
	}
	return errors.New("stream closed before the task finished")
}

func elapsed(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}
