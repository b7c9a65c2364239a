// Command manimate is a CLI client for the animation rendering service:
// authentication, prompt submission, job tracking and a chat view over the
// generation backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const usage = `manimate - animation generation client

Usage:
  manimate login -email <email> -password <password>
  manimate register -email <email> -password <password> -confirm <password> -name <name>
  manimate logout
  manimate whoami
  manimate generate [-quality low|medium|high] [-nowait] <prompt>
  manimate status <job-id>
  manimate get <job-id>
  manimate list [-limit N] [-skip N]
  manimate delete <job-id>
  manimate chat
  manimate history [-limit N] [-search <term>]
`

func main() {
	// Load .env if present; explicit environment still wins.
	_ = godotenv.Load()

	ctx := context.Background()

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "manimate: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	env, err := prepareRuntimeEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	switch command {
	case "login":
		return runLogin(ctx, env, args)
	case "register":
		return runRegister(ctx, env, args)
	case "logout":
		return runLogout(env)
	case "whoami":
		return runWhoami(ctx, env)
	case "generate":
		return runGenerate(ctx, env, args)
	case "status":
		return runStatus(ctx, env, args)
	case "get":
		return runGet(ctx, env, args)
	case "list":
		return runList(ctx, env, args)
	case "delete":
		return runDelete(ctx, env, args)
	case "chat":
		return runChat(ctx, env)
	case "history":
		return runHistory(ctx, env, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runLogin(ctx context.Context, env *runtimeEnv, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := env.Session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func runRegister(ctx context.Context, env *runtimeEnv, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (minimum 8 characters)")
	confirm := fs.String("confirm", "", "password confirmation")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Form-level checks the session store deliberately does not repeat.
	if len(*password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if *password != *confirm {
		return fmt.Errorf("password confirmation does not match")
	}

	user, err := env.Session.Register(ctx, *email, *password, *name)
	if err != nil {
		return err
	}
	fmt.Printf("Registered and logged in as %s <%s>\n", user.Name, user.Email)
	return nil
}

func runLogout(env *runtimeEnv) error {
	env.Session.Logout()
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(ctx context.Context, env *runtimeEnv) error {
	if err := env.requireSession(ctx); err != nil {
		return err
	}
	user, _ := env.Session.User()
	fmt.Printf("%s <%s> (id %s)\n", user.Name, user.Email, user.ID)
	return nil
}
