package game

// Shared fixtures for the game package tests. States are built by hand so
// each test controls exactly what is on the board.

func testState() *GameState {
	s := NewGameState("test-game", "alice", "bob", 42)
	addLeader(s, "alice", "leader-a", 5000)
	addLeader(s, "bob", "leader-b", 5000)
	return s
}

func addLeader(s *GameState, player, cardID string, power int) int64 {
	inst := &CardInstance{
		InstanceID: s.MintInstanceID(),
		CardID:     cardID,
		Name:       cardID,
		Category:   CategoryLeader,
		Owner:      player,
		Zone:       ZoneLeader,
		State:      StateActive,
		FaceUp:     true,
		BasePower:  power,
	}
	s.Players[player].Leader = inst
	return inst.InstanceID
}

func addCharacter(s *GameState, player, name string, power int, keywords ...string) int64 {
	inst := &CardInstance{
		InstanceID: s.MintInstanceID(),
		CardID:     name,
		Name:       name,
		Category:   CategoryCharacter,
		Owner:      player,
		Zone:       ZoneCharacters,
		State:      StateActive,
		FaceUp:     true,
		BasePower:  power,
		Keywords:   keywords,
	}
	s.Players[player].Characters = append(s.Players[player].Characters, inst)
	return inst.InstanceID
}

func addHandCard(s *GameState, player, name string, cost, counter int, category Category) int64 {
	inst := &CardInstance{
		InstanceID:   s.MintInstanceID(),
		CardID:       name,
		Name:         name,
		Category:     category,
		Owner:        player,
		Zone:         ZoneHand,
		State:        StateActive,
		FaceUp:       true,
		BaseCost:     cost,
		CounterValue: counter,
	}
	s.Players[player].Hand = append(s.Players[player].Hand, inst)
	return inst.InstanceID
}

func addResourceTokens(s *GameState, player string, n int) {
	for i := 0; i < n; i++ {
		s.Players[player].ResourceArea = append(s.Players[player].ResourceArea, &CardInstance{
			InstanceID: s.MintInstanceID(),
			CardID:     "resource-token",
			Name:       "Resource",
			Category:   CategoryResource,
			Owner:      player,
			Zone:       ZoneResourceArea,
			State:      StateActive,
			FaceUp:     true,
		})
	}
}

func addLifeCards(s *GameState, player string, n int) {
	for i := 0; i < n; i++ {
		s.Players[player].Life = append(s.Players[player].Life, &CardInstance{
			InstanceID: s.MintInstanceID(),
			CardID:     "life-card",
			Name:       "Life",
			Category:   CategoryCharacter,
			Owner:      player,
			Zone:       ZoneLife,
		})
	}
}

// attachToken moves one active pool token onto the instance, preserving
// identity the way give-resource does.
func attachToken(s *GameState, player string, targetID int64) {
	p := s.Players[player]
	for i, token := range p.ResourceArea {
		if token.State != StateActive {
			continue
		}
		p.ResourceArea = append(p.ResourceArea[:i], p.ResourceArea[i+1:]...)
		holder, zone, _, _ := s.FindInstance(targetID)
		token.Zone = zone
		holder.Attached = append(holder.Attached, token)
		return
	}
}
