// Command triage is an offline terminal demo of a multi-agent run: a
// triage agent routes each question to a math or a history tutor over a
// hand-off, streaming the answer as it arrives. The conversation
// persists in a local SQLite session across restarts. Models are
// scripted so the demo needs no API key; swap in a real relay.Model to
// go live.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/nevindra/relay"
	"github.com/nevindra/relay/internal/config"
	"github.com/nevindra/relay/store/sqlite"
)

func main() {
	// 1. Load config
	cfg := config.Load(os.Getenv("RELAY_CONFIG"))

	// 2. Open the session store
	store := sqlite.New(cfg.Store.Path)
	defer store.Close()
	if err := store.Init(context.Background()); err != nil {
		log.Fatalf(" [store] init failed: %v", err)
	}

	// 3. Build the tutors and the triage front desk
	math := relay.New("Math Tutor",
		relay.WithInstructions(mathPrompt()),
		relay.WithModel(newMathTutor()),
	)
	history := relay.New("History Tutor",
		relay.WithInstructions(historyPrompt()),
		relay.WithModel(newHistoryTutor()),
	)
	triage := relay.New("Triage",
		relay.WithInstructions(triagePrompt()),
		relay.WithModel(newRouter()),
		relay.WithHandoffs(math, history),
	)

	// 4. Runner with a persistent session
	runner := relay.NewRunner(
		relay.WithSession(store.Session("triage-demo")),
		relay.WithDefaultMaxTurns(cfg.Run.MaxTurns),
	)

	// 5. REPL
	fmt.Println("triage demo: ask a math or history question (quit to exit)")
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := ask(runner, triage, line); err != nil {
			fmt.Fprintln(os.Stderr, "run failed:", err)
		}
	}
}

// ask streams one question through the triage network, printing deltas
// and hand-off notices as they arrive.
func ask(runner *relay.Runner, triage *relay.Agent, question string) error {
	handle, err := runner.RunStreamed(context.Background(), triage, relay.Text(question))
	if err != nil {
		return err
	}
	for ev := range handle.Events() {
		switch ev.Type {
		case relay.EventHandoffOccurred:
			fmt.Printf("[handoff -> %s]\n", ev.Agent)
		case relay.EventTextDelta:
			fmt.Print(ev.Content)
		case relay.EventMessageOutput:
			fmt.Println()
		case relay.EventRunError:
			fmt.Println()
		}
	}
	_, err = handle.Wait()
	return err
}

// --- system prompts ---

func triagePrompt() string {
	return `You are the front desk of a tutoring service. Route each question
to the right tutor: math questions to the Math Tutor, history questions
to the History Tutor. If the question fits neither subject, say so and
invite one that does.`
}

func mathPrompt() string {
	return `You are a patient math tutor. Solve the problem, then show the
steps so the student can follow along.`
}

func historyPrompt() string {
	return `You are a history tutor. Answer with dates and context, and place
events on a timeline the student can picture.`
}
