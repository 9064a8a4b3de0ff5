package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/questline/internal/models"
	"github.com/spf13/cobra"
)

var (
	stateStyles = map[models.QuestState]lipgloss.Style{
		models.QuestStateInitialization: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		models.QuestStateStarted:        lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		models.QuestStateCompleted:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		models.QuestStateFailed:         lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var (
	addName        string
	addDesc        string
	addEvents      []string
	addDuration    time.Duration
	addSpan        models.TimeSpan
	addHead        string
	addDep         []string
	listState      string
	listenTTL      time.Duration
	typeCompletion = func() []string {
		var names []string
		for _, t := range models.QuestTypes {
			names = append(names, t.String())
		}
		return names
	}()
)

func addQuestCommands(root *cobra.Command) {
	addCmd := &cobra.Command{
		Use:       "add <type>",
		Short:     "Create a quest",
		Args:      cobra.ExactArgs(1),
		ValidArgs: typeCompletion,
		RunE:      runAdd,
	}
	addCmd.Flags().StringVar(&addName, "name", "", "Quest name (required)")
	addCmd.Flags().StringVar(&addDesc, "desc", "", "Quest description")
	addCmd.Flags().StringSliceVar(&addEvents, "events", nil, "Event keys notified on every transition")
	addCmd.Flags().DurationVar(&addDuration, "duration", 0, "Timer window (timer quests)")
	addCmd.Flags().IntVar(&addSpan.Days, "days", 0, "Timer window days (timer quests)")
	addCmd.Flags().IntVar(&addSpan.Hours, "hours", 0, "Timer window hours (timer quests)")
	addCmd.Flags().IntVar(&addSpan.Minutes, "minutes", 0, "Timer window minutes (timer quests)")
	addCmd.Flags().IntVar(&addSpan.Seconds, "seconds", 0, "Timer window seconds (timer quests)")
	addCmd.Flags().StringVar(&addHead, "head", "", "Anchor id of the chain to join (sideline quests)")
	addCmd.Flags().StringSliceVar(&addDep, "dep", nil, "Dependencies (sideline quests)")
	addCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:       "list <type>",
		Short:     "List quests of a type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: typeCompletion,
		RunE:      runList,
	}
	listCmd.Flags().StringVar(&listState, "state", "", "Filter by state (initialization, started, completed, failed)")

	showCmd := &cobra.Command{
		Use:   "show <type> <quest-id>",
		Short: "Show quest details",
		Args:  cobra.ExactArgs(2),
		RunE:  runShow,
	}

	historyCmd := &cobra.Command{
		Use:   "history <type> <quest-id>",
		Short: "Show the recorded operations of a quest",
		Args:  cobra.ExactArgs(2),
		RunE:  runHistory,
	}

	chainCmd := &cobra.Command{
		Use:   "chain <quest-id>",
		Short: "Show the sideline chain a quest belongs to",
		Args:  cobra.ExactArgs(1),
		RunE:  runChain,
	}

	listenCmd := &cobra.Command{
		Use:   "listen <event-key> <url>",
		Short: "Register a webhook notified when a quest with the event key changes state",
		Args:  cobra.ExactArgs(2),
		RunE:  runListen,
	}
	listenCmd.Flags().DurationVar(&listenTTL, "ttl", 0, "Listener lifetime (daemon default when zero)")

	root.AddCommand(addCmd, listCmd, showCmd, historyCmd, chainCmd, listenCmd)
	for _, action := range []string{"start", "complete", "fail"} {
		root.AddCommand(newAdvanceCmd(action))
	}
}

func newAdvanceCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <type> <quest-id>",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a quest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseQuestType(args[0])
			if err != nil {
				return err
			}
			resp, err := apiPost(questPath(t, args[1], action), struct{}{})
			if err != nil {
				// An expired timer completion still reports the failed record.
				var apiErr *apiError
				if errors.As(err, &apiErr) {
					var body struct {
						Quest *models.Quest `json:"quest"`
					}
					if json.Unmarshal(apiErr.Body, &body) == nil && body.Quest != nil {
						fmt.Printf("Quest %s is %s\n", body.Quest.Number, formatState(body.Quest.State))
					}
				}
				return err
			}

			var q models.Quest
			if err := json.Unmarshal(resp, &q); err != nil {
				return err
			}
			fmt.Printf("Quest %s is %s\n", q.Number, formatState(q.State))
			return nil
		},
	}
}

func questPath(t models.QuestType, id string, rest ...string) string {
	parts := append([]string{"/quests", t.String()}, url.PathEscape(id))
	return strings.Join(append(parts, rest...), "/")
}

func runAdd(cmd *cobra.Command, args []string) error {
	t, err := models.ParseQuestType(args[0])
	if err != nil {
		return err
	}

	body := map[string]any{
		"name":        addName,
		"description": addDesc,
		"events":      addEvents,
	}
	switch t {
	case models.QuestTypeTimer:
		body["duration_ms"] = addDuration.Milliseconds()
		body["span"] = addSpan
	case models.QuestTypeSideline:
		body["head"] = addHead
		body["dep"] = addDep
	}

	resp, err := apiPost("/quests/"+t.String(), body)
	if err != nil {
		return err
	}

	var q models.Quest
	if err := json.Unmarshal(resp, &q); err != nil {
		return err
	}
	fmt.Printf("Created %s quest %s (%s)\n", q.Type, q.Number, q.ID)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	t, err := models.ParseQuestType(args[0])
	if err != nil {
		return err
	}

	path := "/quests/" + t.String()
	if listState != "" {
		path += "?state=" + url.QueryEscape(listState)
	}
	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var quests []models.Quest
	if err := json.Unmarshal(resp, &quests); err != nil {
		return err
	}
	if len(quests) == 0 {
		fmt.Println("No quests found")
		return nil
	}

	printQuests(os.Stdout, quests)
	return nil
}

func printQuests(out io.Writer, quests []models.Quest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tID\tNAME\tSTATE")
	for _, q := range quests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.Number, shortID(q.ID), truncate(q.Name, 40), q.State)
	}
	w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	t, err := models.ParseQuestType(args[0])
	if err != nil {
		return err
	}

	resp, err := apiGet(questPath(t, args[1]))
	if err != nil {
		return err
	}

	var q models.Quest
	if err := json.Unmarshal(resp, &q); err != nil {
		return err
	}
	printQuest(os.Stdout, &q)
	return nil
}

func printQuest(out io.Writer, q *models.Quest) {
	field := func(label, value string) {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label+":")), value)
	}
	field("ID", q.ID)
	field("Number", q.Number)
	field("Name", q.Name)
	if q.Description != "" {
		field("Description", q.Description)
	}
	field("Type", q.Type.String())
	field("State", formatState(q.State))
	if len(q.Events) > 0 {
		field("Events", strings.Join(q.Events, ", "))
	}
	field("Created", formatMillis(q.Creation))
	switch q.Type {
	case models.QuestTypeTimer:
		field("Duration", (time.Duration(q.Duration) * time.Millisecond).String())
		field("Started", formatMillis(q.Start))
		if q.Start != models.Unset {
			field("Deadline", formatMillis(q.Deadline()))
		}
	case models.QuestTypeSideline:
		field("Started", formatMillis(q.Start))
		field("Head", q.Head)
		if q.IsAnchor() {
			field("Followers", fmt.Sprintf("%d", len(q.Order)))
		}
		if len(q.Dep) > 0 {
			field("Depends on", strings.Join(q.Dep, ", "))
		}
	}
	field("Finished", formatMillis(q.Finish))
}

func runHistory(cmd *cobra.Command, args []string) error {
	t, err := models.ParseQuestType(args[0])
	if err != nil {
		return err
	}

	resp, err := apiGet(questPath(t, args[1], "history"))
	if err != nil {
		return err
	}

	var history []models.Transition
	if err := json.Unmarshal(resp, &history); err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("No history recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
	for _, h := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Timestamp.Local().Format(time.DateTime), h.Action, h.Outcome, truncate(h.Details, 60))
	}
	w.Flush()
	return nil
}

func runChain(cmd *cobra.Command, args []string) error {
	resp, err := apiGet(questPath(models.QuestTypeSideline, args[0], "chain"))
	if err != nil {
		return err
	}

	var chain []models.Quest
	if err := json.Unmarshal(resp, &chain); err != nil {
		return err
	}
	printQuests(os.Stdout, chain)
	return nil
}

func runListen(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"key":     args[0],
		"url":     args[1],
		"ttl_sec": int(listenTTL.Seconds()),
	}
	resp, err := apiPost("/listeners", body)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return fmt.Errorf("a live listener already holds %q", args[0])
		}
		return err
	}

	var result struct {
		Key        string `json:"key"`
		Registered bool   `json:"registered"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	fmt.Printf("Listening on %s -> %s\n", result.Key, args[1])
	return nil
}

func formatState(state models.QuestState) string {
	if style, ok := stateStyles[state]; ok {
		return style.Render(string(state))
	}
	return string(state)
}

func formatMillis(ms int64) string {
	if ms == models.Unset {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
