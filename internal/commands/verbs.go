// ABOUTME: Command verb vocabulary and alias resolution
// ABOUTME: Maps English and Chinese command words onto dispatcher verbs

package commands

import "strings"

// Verb identifies a dispatcher operation.
type Verb string

const (
	VerbCheckin  Verb = "checkin"
	VerbDelete   Verb = "delete"
	VerbRecord   Verb = "record"
	VerbAnalyze  Verb = "analyze"
	VerbBackfill Verb = "backfill"
	VerbAdmin    Verb = "admin"
	VerbConfirm  Verb = "confirm"
	VerbHelp     Verb = "help"
)

// route is what an alias expands to: a verb plus any implied leading arguments.
type route struct {
	verb Verb
	args []string
}

var aliases = map[string]route{
	"checkin":  {verb: VerbCheckin},
	"check-in": {verb: VerbCheckin},
	"打卡":       {verb: VerbCheckin},

	"delete": {verb: VerbDelete},
	"打卡删除":   {verb: VerbDelete},

	"record": {verb: VerbRecord},
	"stats":  {verb: VerbRecord},
	"打卡记录":   {verb: VerbRecord},

	"analyze": {verb: VerbAnalyze},
	"report":  {verb: VerbAnalyze},
	"打卡分析":    {verb: VerbAnalyze},

	"backfill": {verb: VerbBackfill},
	"补打卡":      {verb: VerbBackfill},

	"admin":   {verb: VerbAdmin},
	"打卡管理":    {verb: VerbAdmin},
	"创建打卡管理员": {verb: VerbAdmin, args: []string{"create"}},

	"confirm": {verb: VerbConfirm},
	"确认清空":    {verb: VerbConfirm},

	"help": {verb: VerbHelp},
	"打卡帮助": {verb: VerbHelp},
}

// Resolve maps a command word to its verb. A leading slash is ignored and
// ASCII words match case-insensitively. The returned args are implied by the
// alias and go before the caller's own arguments.
func Resolve(word string) (Verb, []string, bool) {
	word = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(word), "/"))
	r, ok := aliases[word]
	if !ok {
		return "", nil, false
	}
	return r.verb, r.args, true
}

// admin subcommands and their aliases
const (
	subCreate = "create"
	subShow   = "show"
	subClear  = "delete"
	subBackup = "backup"
	subPrune  = "prune"
)

var adminSubcommands = map[string]string{
	"create": subCreate,
	"创建":     subCreate,
	"show":   subShow,
	"status": subShow,
	"查看":     subShow,
	"delete": subClear,
	"clear":  subClear,
	"删除":     subClear,
	"清空":     subClear,
	"backup": subBackup,
	"备份":     subBackup,
	"prune":  subPrune,
	"清理":     subPrune,
}

// allWords select every goal in a delete command.
var allWords = map[string]bool{
	"all": true,
	"所有":  true,
	"全部":  true,
}
