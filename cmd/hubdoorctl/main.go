// hubdoorctl issues door credentials offline: signed event links, shortcut
// tokens for chat members, and the current day token.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/commonshub/hubdoor/internal/hubdoor/capability"
	"github.com/commonshub/hubdoor/internal/hubdoor/dailytoken"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `Usage: hubdoorctl <command> [flags]

Commands:
  link            sign an event access link
  shortcut-token  print the shortcut token of a chat member
  day-token       print the day token

Run "hubdoorctl <command> --help" for the flags of a command.
`

var errUsage = errors.New("usage")

func run(args []string, stdout, stderr io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}
	switch args[0] {
	case "link":
		return runLink(args[1:], stdout, stderr, now)
	case "shortcut-token":
		return runShortcutToken(args[1:], stdout, stderr)
	case "day-token":
		return runDayToken(args[1:], stdout, stderr, now)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// parse handles --help uniformly: it prints the flag defaults and reports
// done=true so the caller returns without error.
func parse(fs *pflag.FlagSet, args []string, stderr io.Writer) (done bool, err error) {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, err
	}
	if fs.NArg() > 0 {
		return false, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return false, nil
}

func runLink(args []string, stdout, stderr io.Writer, now func() time.Time) error {
	var (
		keyHex   string
		keyFile  string
		name     string
		host     string
		reason   string
		start    string
		startIn  time.Duration
		duration time.Duration
		eventURL string
		baseURL  string
	)
	fs := pflag.NewFlagSet("link", pflag.ContinueOnError)
	fs.StringVar(&keyHex, "key", os.Getenv("HUBDOOR_PRIVATE_KEY"), "hex signing key (default $HUBDOOR_PRIVATE_KEY)")
	fs.StringVar(&keyFile, "key-file", "./data/.privateKey", "signing key file, used when --key is empty")
	fs.StringVar(&name, "name", "", "guest name")
	fs.StringVar(&host, "host", "", "event host")
	fs.StringVar(&reason, "reason", "", "event name or reason for access")
	fs.StringVar(&start, "start", "", "start time, RFC 3339 or unix seconds (default now)")
	fs.DurationVar(&startIn, "start-in", 0, "start this long from now; ignored when --start is set")
	fs.DurationVar(&duration, "duration", 3*time.Hour, "access period, whole minutes")
	fs.StringVar(&eventURL, "event-url", "", "optional event page, included in the signed message")
	fs.StringVar(&baseURL, "base-url", "http://localhost:3000", "door server base URL")
	if done, err := parse(fs, args, stderr); done || err != nil {
		return err
	}

	if name == "" || host == "" || reason == "" {
		return errors.New("--name, --host and --reason are required")
	}
	if duration < time.Minute {
		return errors.New("--duration must be at least one minute")
	}

	issued := now()
	startTime := issued.Add(startIn)
	if start != "" {
		t, err := parseTime(start)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		startTime = t
	}

	key, _, err := capability.LoadOrCreateKey(keyHex, keyFile)
	if err != nil {
		return err
	}
	signer := capability.NewSigner(key)

	link, err := signer.SignURL(baseURL, capability.Request{
		Name:      name,
		Host:      host,
		Reason:    reason,
		IssuedAt:  issued,
		StartTime: startTime,
		Duration:  duration,
		EventURL:  eventURL,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stderr, "signed by %s\n", signer.Address())
	fmt.Fprintln(stdout, link)
	return nil
}

func runShortcutToken(args []string, stdout, stderr io.Writer) error {
	var user, guild, secret string
	fs := pflag.NewFlagSet("shortcut-token", pflag.ContinueOnError)
	fs.StringVar(&user, "user", "", "chat member id")
	fs.StringVar(&guild, "guild", os.Getenv("HUBDOOR_DISCORD_GUILD_ID"), "guild id (default $HUBDOOR_DISCORD_GUILD_ID)")
	fs.StringVar(&secret, "secret", os.Getenv("HUBDOOR_SECRET"), "server secret (default $HUBDOOR_SECRET)")
	if done, err := parse(fs, args, stderr); done || err != nil {
		return err
	}
	if user == "" || secret == "" {
		return errors.New("--user and --secret are required")
	}
	fmt.Fprintln(stdout, dailytoken.ForPrincipal(tenant(guild), user, secret))
	return nil
}

func runDayToken(args []string, stdout, stderr io.Writer, now func() time.Time) error {
	var guild, secret, tz, date string
	fs := pflag.NewFlagSet("day-token", pflag.ContinueOnError)
	fs.StringVar(&guild, "guild", os.Getenv("HUBDOOR_DISCORD_GUILD_ID"), "guild id (default $HUBDOOR_DISCORD_GUILD_ID)")
	fs.StringVar(&secret, "secret", os.Getenv("HUBDOOR_SECRET"), "server secret (default $HUBDOOR_SECRET)")
	fs.StringVar(&tz, "tz", "Europe/Brussels", "door timezone")
	fs.StringVar(&date, "date", "", "YYYY-MM-DD (default today in --tz)")
	if done, err := parse(fs, args, stderr); done || err != nil {
		return err
	}
	if secret == "" {
		return errors.New("--secret is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("--tz: %w", err)
	}
	day := now().In(loc)
	if date != "" {
		if day, err = time.ParseInLocation("2006-01-02", date, loc); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}
	fmt.Fprintln(stdout, dailytoken.ForDay(tenant(guild), day, secret))
	return nil
}

// tenant mirrors the server: the guild id, or "hubdoor" without one.
func tenant(guild string) string {
	if guild = strings.TrimSpace(guild); guild != "" {
		return guild
	}
	return "hubdoor"
}

func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, s)
}
