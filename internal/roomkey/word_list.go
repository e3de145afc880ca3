package roomkey

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	"quiet", "bouncy", "fuzzy", "plucky", "merry", "peppy", "misty", "sunny", "velvet", "witty",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"duckling", "fawn", "lamb", "raccoon", "beaver", "seahorse", "dolphin", "whale", "narwhal", "penguin",
	"flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "canary", "heron", "lynx", "badger",
}

var things = []string{
	"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "echo", "marble", "maple",
	"cocoa", "breeze", "meadow", "willow", "ember", "poppy", "pixel", "biscuit", "toffee", "lantern",
	"puddle", "pebble", "rocket", "comet", "orbit", "nebula", "canyon", "ridge", "harbor", "violin",
}

var dishes = []string{
	"pancake", "waffle", "sushi", "ramen", "curry", "taco", "burrito", "biryani", "paella", "risotto",
	"lasagna", "pizza", "dumpling", "noodle", "omelette", "quiche", "kebab", "fondue", "pierogi", "gnocchi",
	"falafel", "samosa", "poutine", "dimsum", "crepe", "bagel", "pretzel", "churro", "mochi", "scone",
}
