package categorize

// defaultApps is applied in order; an app listed under several categories
// ends up in the last one.
var defaultApps = []struct {
	category string
	apps     []string
}{
	{System, []string{
		"svchost.exe", "system", "registry", "smss.exe", "csrss.exe",
		"wininit.exe", "services.exe", "lsass.exe", "fontdrvhost.exe",
		"dwm.exe", "taskhost.exe", "explorer.exe", "taskhostw.exe",
		"conhost.exe", "SearchApp.exe", "ShellExperienceHost.exe",
		"RuntimeBroker.exe", "backgroundTaskHost.exe", "StartMenuExperienceHost.exe",
		"sihost.exe", "ctfmon.exe", "SecurityHealthService.exe",
		"sppsvc.exe", "SearchIndexer.exe", "SystemSettings.exe", "WinStore.App.exe",
		"ApplicationFrameHost.exe", "LockApp.exe", "DataExchangeHost.exe",
		"loginwindow", "SystemUIServer", "Dock", "gnome-shell",
	}},
	{Browser, []string{
		"chrome.exe", "firefox.exe", "msedge.exe", "opera.exe", "brave.exe",
		"vivaldi.exe", "safari.exe", "iexplore.exe",
		"Google Chrome", "chromium", "Microsoft Edge",
	}},
	{Development, []string{
		"code.exe", "devenv.exe", "pycharm64.exe", "idea64.exe",
		"eclipse.exe", "android studio.exe", "studio64.exe", "webstorm64.exe",
		"phpstorm64.exe", "rider64.exe", "notepad++.exe", "sublime_text.exe",
		"cmd.exe", "powershell.exe", "windowsterminal.exe", "git-bash.exe",
		"python.exe", "java.exe", "javaw.exe",
		"goland64.exe", "goland", "iTerm2", "Terminal", "gnome-terminal-server", "alacritty", "kitty",
	}},
	{Productivity, []string{
		"winword.exe", "excel.exe", "powerpnt.exe", "outlook.exe", "onenote.exe",
		"access.exe", "publisher.exe", "acrord32.exe", "acrobat.exe",
		"libreoffice.exe", "soffice.exe", "calc.exe", "writer.exe",
		"thunderbird.exe", "evernote.exe", "notion.exe", "slack.exe",
		"msteams.exe", "zoom.exe", "obs64.exe", "anydesk.exe", "teamviewer.exe",
	}},
	{Entertainment, []string{
		"spotify.exe", "itunes.exe", "vlc.exe", "wmplayer.exe", "Music.UI.exe",
		"netflix.exe", "steam.exe", "epicgameslauncher.exe", "origin.exe",
		"battle.net.exe", "mpc-hc.exe", "mpc-hc64.exe", "foobar2000.exe",
		"aimp.exe", "mpv.exe", "winamp.exe", "groove.exe",
	}},
	{Communication, []string{
		"skype.exe", "telegram.exe", "whatsapp.exe", "discord.exe",
		"signal.exe", "microsoft.skypeapp.exe", "teams.exe", "slack.exe",
		"zoom.exe", "viber.exe", "wechat.exe", "mail.exe", "thunderbird.exe",
		"outlook.exe", "yammer.exe", "googlechat.exe", "messenger.exe",
		"skypeforwindows.exe", "rocketchat.exe",
	}},
	{Utility, []string{
		"notepad.exe", "calc.exe", "mspaint.exe", "snippingtool.exe",
		"stikynot.exe", "magnify.exe", "narrator.exe", "photos.exe",
		"7zfm.exe", "winrar.exe", "winzip.exe", "ccleaner.exe",
		"cleanmgr.exe", "mstsc.exe", "wordpad.exe",
		"calculator.exe", "paint.exe", "paint3d.exe", "Finder",
	}},
}
