package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/model"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talks to the skill from the console",
	Long: `Talks to the skill from the console.

Each line is an intent followed by slot=value pairs, e.g.

  AddStop
  Number number=86963
  Direction direction=inbound
  GetSummary stop="home"

A line without an intent is sent as a Name intent.`,
	Args: cobra.NoArgs,
	RunE: chat,
}

var deviceID string

func init() {
	chatCmd.Flags().StringVarP(&deviceID, "device", "d", "console", "Device ID")
	rootCmd.AddCommand(chatCmd)
}

var canonicalSlots = map[string]string{
	"stop":      bustime.SlotStop,
	"route":     bustime.SlotRoute,
	"number":    bustime.SlotNumber,
	"name":      bustime.SlotName,
	"direction": bustime.SlotDirection,
}

// Splits a line into an intent and slots. Slot values may be
// double quoted.
func parseLine(line string) (bustime.Intent, map[string]string) {
	fields := []string{}
	var cur strings.Builder
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ' ' && !quoted:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}

	slots := map[string]string{}
	if len(fields) == 0 {
		return bustime.IntentFallback, slots
	}

	if strings.Contains(fields[0], "=") || !isIntent(fields[0]) {
		slots[bustime.SlotName] = strings.Join(fields, " ")
		return bustime.IntentName, slots
	}

	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		if canonical, ok := canonicalSlots[strings.ToLower(k)]; ok {
			k = canonical
		}
		slots[k] = v
	}
	return bustime.Intent(fields[0]), slots
}

func isIntent(s string) bool {
	for _, intent := range []bustime.Intent{
		bustime.IntentLaunch, bustime.IntentGetSummary, bustime.IntentGetRoute,
		bustime.IntentAddStop, bustime.IntentListStop, bustime.IntentAddRoute,
		bustime.IntentDeleteStop, bustime.IntentDeleteRoute, bustime.IntentNumber,
		bustime.IntentName, bustime.IntentDirection, bustime.IntentYes,
		bustime.IntentNo, bustime.IntentHelp, bustime.IntentCancel,
		bustime.IntentStop, bustime.IntentFallback, bustime.IntentSessionEnded,
	} {
		if string(intent) == s {
			return true
		}
	}
	return false
}

func chat(cmd *cobra.Command, args []string) error {
	s, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer s.Close()

	p, _, err := newProvider(nil)
	if err != nil {
		return err
	}
	skill := newSkill(s, p, nil)

	out := cmd.OutOrStdout()
	var session *model.Session

	respond := func(intent bustime.Intent, slots map[string]string) bool {
		resp, next := skill.HandleTurn(cmd.Context(), bustime.Request{
			DeviceID: deviceID,
			Intent:   intent,
			Slots:    slots,
			Session:  session,
		})
		session = &next

		if resp.Speech != "" {
			fmt.Fprintln(out, speechStyle.Render(bustime.StripMarkup(resp.Speech)))
		}
		if resp.Display != "" {
			fmt.Fprintln(out, displayStyle.Render(resp.Display))
		}
		fmt.Fprintln(out, detailStyle.Render(fmt.Sprintf("[%s, %d stops]", next.State.Kind, len(next.Stops))))

		if resp.EndSession {
			fmt.Fprintln(out, warningStyle.Render("session ended"))
		}
		return !resp.EndSession
	}

	if !respond(bustime.IntentLaunch, nil) {
		return nil
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		intent, slots := parseLine(line)
		if !respond(intent, slots) {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	respond(bustime.IntentSessionEnded, nil)
	return nil
}
