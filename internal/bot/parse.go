package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"growtube/internal/game"
	"growtube/internal/trade"

	"github.com/dustin/go-humanize"
)

type usageError struct {
	usage string
}

func (e *usageError) Error() string {
	return "usage: " + e.usage
}

func usage(format string, args ...any) error {
	return &usageError{usage: fmt.Sprintf(format, args...)}
}

// splitCommand returns the lower-cased command name and its arguments when
// content starts with prefix.
func splitCommand(content, prefix string) (string, []string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(strings.ToLower(content), strings.ToLower(prefix)) {
		return "", nil, false
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// parseUserID accepts a mention (<@id> or <@!id>) or a bare id.
func parseUserID(s string) (int64, error) {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "<@") && strings.HasSuffix(raw, ">") {
		raw = strings.TrimPrefix(raw[2:len(raw)-1], "!")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, game.Validationf("%q is not a user", s)
	}
	return id, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, game.Validationf("%q is not a number", s)
	}
	return n, nil
}

// parseSell reads "[qty|all] <item>".
func parseSell(userID int64, args []string) (game.SellInput, error) {
	in := game.SellInput{UserID: userID, Quantity: 1}
	if len(args) > 0 {
		switch {
		case strings.EqualFold(args[0], "all"):
			in.All = true
			args = args[1:]
		case isNumber(args[0]):
			in.Quantity, _ = parseInt(args[0])
			args = args[1:]
		}
	}
	if len(args) == 0 {
		return game.SellInput{}, usage("sell [quantity|all] <item>")
	}
	in.ItemName = strings.Join(args, " ")
	return in, nil
}

// parseBuy reads "[qty] <item>".
func parseBuy(userID int64, args []string) (game.BuyInput, error) {
	in := game.BuyInput{UserID: userID, Quantity: 1}
	if len(args) > 0 && isNumber(args[0]) {
		in.Quantity, _ = parseInt(args[0])
		args = args[1:]
	}
	if len(args) == 0 {
		return game.BuyInput{}, usage("buy [quantity] <item>")
	}
	in.ItemName = strings.Join(args, " ")
	return in, nil
}

// parseTradeChange reads "[qty] [item]". A bare number is currency.
func parseTradeChange(verb string, args []string) (trade.Change, error) {
	if len(args) == 0 {
		return trade.Change{}, usage("trade %s [quantity] [item]", verb)
	}
	if !isNumber(args[0]) {
		return trade.Item(strings.Join(args, " "), 1), nil
	}
	n, _ := parseInt(args[0])
	if len(args) == 1 {
		return trade.Currency(n), nil
	}
	return trade.Item(strings.Join(args[1:], " "), n), nil
}

func commaInt(n int64) string {
	return humanize.Comma(n)
}

func money(n int64) string {
	return commaInt(n) + " " + game.CurrencyName
}

// humanDuration renders d coarsely ("30 seconds", "5 minutes"). Anything
// under a second reads as one second.
func humanDuration(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
