package bot

// Command constants for Telegram bot commands.
const (
	CommandStart       = "/start"
	CommandHelp        = "/help"
	CommandCandy       = "/candy"
	CommandGift        = "/gift"
	CommandHeist       = "/heist"
	CommandSnowball    = "/snowball"
	CommandLock        = "/lock"
	CommandLeaderboard = "/leaderboard"
	CommandDMs         = "/dms"
	CommandPlayers     = "/players"
	CommandCancel      = "/cancel"
)

// menuCommands are published to Telegram's command menu.
var menuCommands = []struct {
	Text        string
	Description string
}{
	{CommandCandy, "Open the game panel"},
	{CommandGift, "Reply to someone: gift them candy"},
	{CommandHeist, "Reply to someone: steal their candy"},
	{CommandSnowball, "Reply to someone: knock candy loose"},
	{CommandLock, "Lock your stocking"},
	{CommandLeaderboard, "Richest players"},
	{CommandDMs, "Toggle heist notices"},
	{CommandCancel, "Cancel the current step"},
	{CommandHelp, "How to play"},
}
