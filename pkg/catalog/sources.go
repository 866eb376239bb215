package catalog

const (
	nflverseReleases = "https://github.com/nflverse/nflverse-data/releases/download/"

	descGSIS     = "Game Stats and Info Service ID: the primary ID for play-by-play data."
	descDraftID  = "Draft year and overall pick. Not guaranteed to be unique."
	descPFR      = "Player ID for Pro Football Reference"
	descESPN     = "Player ID for ESPN API"
	descSleeper  = "Player ID for Sleeper API"
	descPFF      = "Player ID for Pro Football Focus"
	descFantasy  = "Player ID for FantasyData"
	descRotowire = "Player ID for Rotowire"
	descRadar    = "Player ID for Sportradar API"
	descYahoo    = "Player ID for Yahoo API"
	descNone     = "No description available."
)

func draftSource() *Source {
	return &Source{
		name: Draft,
		fields: []Field{
			{Name: DraftIDField, Description: descDraftID},
			{Name: "gsis_id", Description: descGSIS},
			{Name: "pfr_player_id", Description: "ID from Pro Football Reference"},
			{Name: "cfb_player_id", Description: "ID from College Football Reference"},
		},
		aliases:      map[string]string{"pfr_player_id": "pfr_id", "cfb_player_id": "cfbref_id"},
		partitioned:  true,
		seasonColumn: "season",
		firstSeason:  1980,
		urlTemplate:  nflverseReleases + "draft_picks/draft_picks.csv",
		draftID:      &DraftIDSpec{YearColumn: "season", PickColumn: "pick"},
	}
}

func rosterSource() *Source {
	return &Source{
		name: Roster,
		fields: []Field{
			{Name: DraftIDField, Description: descDraftID},
			{Name: "player_id", Description: "ID of the player. Use this to join to other sources."},
			{Name: "espn_id", Description: descESPN},
			{Name: "sleeper_id", Description: descSleeper},
			{Name: "pff_id", Description: descPFF},
			{Name: "gsis_it_id", Description: descNone},
			{Name: "fantasy_data_id", Description: descFantasy},
			{Name: "rotowire_id", Description: descRotowire},
			{Name: "pfr_id", Description: descPFR},
			{Name: "sportradar_id", Description: descRadar},
			{Name: "yahoo_id", Description: descYahoo},
			{Name: "smart_id", Description: descNone},
			{Name: "esb_id", Description: descNone},
		},
		aliases:      map[string]string{"player_id": "gsis_id"},
		partitioned:  true,
		seasonColumn: "season",
		firstSeason:  2002,
		urlTemplate:  nflverseReleases + "weekly_rosters/roster_weekly_%d.csv",
		draftID:      &DraftIDSpec{YearColumn: "entry_year", PickColumn: "draft_number"},
	}
}

func playerSource() *Source {
	return &Source{
		name: Player,
		fields: []Field{
			{Name: DraftIDField, Description: descDraftID},
			{Name: "gsis_it_id", Description: descNone},
			{Name: "gsis_id", Description: descGSIS},
			{Name: "smart_id", Description: descNone},
			{Name: "esb_id", Description: descNone},
		},
		urlTemplate: nflverseReleases + "players/players.csv",
		draftID:     &DraftIDSpec{YearColumn: "draft_year", PickColumn: "draft_pick"},
	}
}

func mapSource() *Source {
	return &Source{
		name: Map,
		fields: []Field{
			{Name: "fleaflicker_id", Description: "Fleaflicker ID - usual format is an integer with ~4 digits."},
			{Name: "espn_id", Description: descESPN},
			{Name: "fantasy_data_id", Description: descFantasy},
			{Name: "yahoo_id", Description: descYahoo},
			{Name: "rotowire_id", Description: descRotowire},
			{Name: "pff_id", Description: descPFF},
			{Name: "sleeper_id", Description: descSleeper},
			{Name: "stats_global_id", Description: "Stats Global ID - usual format is a six digit integer"},
			{Name: "rotoworld_id", Description: "Rotoworld ID - usual format is an integer with ~four digits."},
			{Name: "mfl_id", Description: "MyFantasyLeague.com ID - unique and complete. Usually an integer of 5 digits."},
			{Name: "gsis_id", Description: descGSIS},
			{Name: "ktc_id", Description: "KeepTradeCut ID - usual format is an integer with ~four digits."},
			{Name: "fantasypros_id", Description: "FantasyPros.com ID - usually an integer of 5 digits."},
			{Name: "nfl_id", Description: "NFL.com ID - usual format fullname/integers"},
			{Name: "cbs_id", Description: "CBS ID - usual format is an integer with ~ 7 digits."},
			{Name: "pfr_id", Description: descPFR},
			{Name: "swish_id", Description: "Player ID for Swish Analytics"},
			{Name: "sportradar_id", Description: descRadar},
			{Name: "stats_id", Description: "Stats ID - usual format is five digit integer"},
			{Name: "cfbref_id", Description: "College Football Reference ID - usual format is firstname-lastname-integer"},
		},
		urlTemplate: "https://raw.githubusercontent.com/dynastyprocess/data/master/files/db_playerids.csv",
	}
}
