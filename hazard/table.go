package hazard

// rules is the hazard keyword table in registration order. Order matters:
// among equal priorities the earliest registered match wins. The slice is
// never written after package initialisation.
var rules = []Rule{
	// Priority 1, critical
	{"fire", 1, "fire detected — move away immediately", "🔥"},
	{"flame", 1, "fire detected — move away immediately", "🔥"},
	{"flames", 1, "fire detected — move away immediately", "🔥"},
	{"burning", 1, "fire detected — move away immediately", "🔥"},
	{"smoke", 1, "smoke detected — possible fire nearby", "💨"},
	{"explosion", 1, "explosion risk — move away", "💥"},
	{"electric", 1, "electrical hazard nearby", "⚡"},
	{"electrical", 1, "electrical hazard nearby", "⚡"},
	{"sparks", 1, "electrical sparks — do not touch", "⚡"},
	{"chemical", 1, "chemical hazard nearby", "☣️"},
	{"toxic", 1, "toxic material nearby", "☣️"},
	{"gun", 1, "weapon detected nearby", "🚨"},
	{"weapon", 1, "weapon detected nearby", "🚨"},
	{"knife", 1, "sharp weapon nearby", "🚨"},
	{"flood", 1, "flooding detected — avoid area", "🌊"},
	{"flooded", 1, "flooding detected — avoid area", "🌊"},

	// Priority 2, serious
	{"car", 2, "vehicle nearby — stop and wait", "🚗"},
	{"truck", 2, "large vehicle nearby", "🚛"},
	{"bus", 2, "bus nearby — stop and wait", "🚌"},
	{"van", 2, "vehicle nearby — stop and wait", "🚗"},
	{"motorcycle", 2, "motorcycle nearby — be careful", "🏍️"},
	{"motorbike", 2, "motorcycle nearby — be careful", "🏍️"},
	{"vehicle", 2, "vehicle nearby — stop and wait", "🚗"},
	{"traffic", 2, "traffic ahead — do not cross", "🚦"},
	{"road", 2, "road ahead — watch for vehicles", "🛣️"},
	{"street", 2, "street ahead — watch for traffic", "🛣️"},
	{"train", 2, "train nearby — stay clear of tracks", "🚆"},
	{"track", 2, "train track — cross carefully", "🚆"},
	{"crowd", 2, "crowd ahead — move carefully", "👥"},

	// Priority 3, high
	{"stair", 3, "stairs ahead — hold the railing", "🪜"},
	{"stairs", 3, "stairs ahead — hold the railing", "🪜"},
	{"staircase", 3, "staircase ahead — hold the railing", "🪜"},
	{"stairway", 3, "stairway ahead — hold the railing", "🪜"},
	{"step", 3, "step ahead — watch your footing", "⚠️"},
	{"steps", 3, "steps ahead — watch your footing", "⚠️"},
	{"escalator", 3, "escalator ahead — hold the railing", "🪜"},
	{"ladder", 3, "ladder nearby — be careful", "🪜"},
	{"ramp", 3, "ramp ahead — uneven surface", "⚠️"},
	{"cliff", 3, "drop ahead — stay back", "🏔️"},
	{"ledge", 3, "ledge ahead — stay back", "⚠️"},
	{"drop", 3, "drop ahead — stay back", "⚠️"},
	{"pit", 3, "pit ahead — do not step forward", "⚠️"},
	{"hole", 3, "hole in floor — do not step", "⚠️"},
	{"gap", 3, "gap ahead — do not step", "⚠️"},
	{"ditch", 3, "ditch ahead — step carefully", "⚠️"},
	{"manhole", 3, "manhole ahead — avoid", "⚠️"},
	{"wet", 3, "wet surface — slip risk", "💧"},
	{"slippery", 3, "slippery surface — slow down", "💧"},
	{"puddle", 3, "puddle on ground", "💧"},
	{"spill", 3, "spill on floor — slip risk", "💧"},
	{"ice", 3, "ice on ground — slip risk", "🧊"},
	{"icy", 3, "icy surface — slip risk", "🧊"},
	{"snow", 3, "snow on ground — slippery", "❄️"},
	{"mud", 3, "muddy ground — slippery", "⚠️"},

	// Priority 4, medium
	{"door", 4, "door ahead", "🚪"},
	{"doorway", 4, "doorway ahead", "🚪"},
	{"entrance", 4, "entrance ahead", "🚪"},
	{"exit", 4, "exit ahead", "🚪"},
	{"gate", 4, "gate ahead", "🚧"},
	{"turnstile", 4, "turnstile ahead", "🚧"},
	{"wall", 4, "wall ahead — stop", "🧱"},
	{"fence", 4, "fence ahead", "🚧"},
	{"barrier", 4, "barrier ahead", "🚧"},
	{"bollard", 4, "bollard in path", "🚧"},
	{"pole", 4, "pole in path", "⚠️"},
	{"pillar", 4, "pillar ahead", "⚠️"},
	{"column", 4, "column ahead", "⚠️"},
	{"beam", 4, "beam overhead — duck", "⚠️"},
	{"pipe", 4, "pipe in path", "⚠️"},
	{"construction", 4, "construction zone — be careful", "🏗️"},
	{"scaffold", 4, "scaffolding overhead", "🏗️"},
	{"dog", 4, "dog nearby — approach carefully", "🐕"},
	{"animal", 4, "animal nearby — be cautious", "🐾"},
	{"snake", 4, "snake nearby — do not approach", "🐍"},
	{"person", 4, "person directly ahead — slow down", "🧍"},
	{"people", 4, "people ahead — slow down", "👥"},
	{"child", 4, "child nearby — be extra careful", "👶"},
	{"baby", 4, "baby nearby — be extra careful", "👶"},
	{"bicycle", 4, "bicycle nearby", "🚲"},
	{"bike", 4, "bicycle nearby", "🚲"},
	{"glass", 4, "glass nearby — be careful", "⚠️"},
	{"broken", 4, "broken object nearby", "⚠️"},
	{"sharp", 4, "sharp object nearby", "⚠️"},
	{"debris", 4, "debris on ground", "⚠️"},
	{"rubble", 4, "rubble on ground", "⚠️"},

	// Priority 5, low
	{"chair", 5, "chair in path", "🪑"},
	{"stool", 5, "stool in path", "🪑"},
	{"table", 5, "table ahead", "🪑"},
	{"desk", 5, "desk ahead", "🪑"},
	{"bench", 5, "bench ahead", "🪑"},
	{"sofa", 5, "sofa in path", "🛋️"},
	{"couch", 5, "couch in path", "🛋️"},
	{"box", 5, "box in path", "📦"},
	{"crate", 5, "crate in path", "📦"},
	{"luggage", 5, "luggage in path", "🧳"},
	{"suitcase", 5, "suitcase in path", "🧳"},
	{"cord", 5, "cord on ground — trip hazard", "⚠️"},
	{"cable", 5, "cable on ground — trip hazard", "⚠️"},
	{"wire", 5, "wire on ground — trip hazard", "⚠️"},
	{"hose", 5, "hose on ground — trip hazard", "⚠️"},
	{"rope", 5, "rope on ground — trip hazard", "⚠️"},
	{"mat", 5, "mat on floor — edge risk", "⚠️"},
	{"rug", 5, "rug on floor — edge risk", "⚠️"},
	{"carpet", 5, "carpet edge — trip risk", "⚠️"},
	{"clutter", 5, "clutter on floor", "⚠️"},
}
