package sentence

// abbreviations lists tokens, including their final period, after which a
// period does not end a sentence.
var abbreviations = map[string][]string{
	"en": {
		"mr.", "mrs.", "ms.", "dr.", "prof.", "sr.", "jr.", "st.", "mt.",
		"vs.", "etc.", "e.g.", "i.e.", "cf.", "approx.", "no.", "inc.",
		"ltd.", "co.", "corp.", "gen.", "col.", "lt.", "sgt.", "capt.",
		"gov.", "sen.", "rep.", "rev.", "jan.", "feb.", "mar.", "apr.",
		"jun.", "jul.", "aug.", "sep.", "sept.", "oct.", "nov.", "dec.",
		"a.m.", "p.m.", "u.s.", "u.k.",
	},
	"de": {
		"dr.", "prof.", "hr.", "fr.", "nr.", "str.", "bzw.", "ca.", "evtl.",
		"ggf.", "usw.", "vgl.", "z.b.", "d.h.", "u.a.", "s.o.", "s.u.",
		"inkl.", "zzgl.", "bspw.", "jan.", "feb.", "febr.", "aug.", "sept.",
		"okt.", "nov.", "dez.",
	},
	"fr": {
		"m.", "mm.", "mme.", "mlle.", "dr.", "pr.", "st.", "ste.", "etc.",
		"cf.", "p.ex.", "env.", "janv.", "févr.", "avr.", "juil.", "sept.",
		"oct.", "nov.", "déc.",
	},
	"es": {
		"sr.", "sra.", "srta.", "dr.", "dra.", "ud.", "uds.", "etc.", "p.ej.",
		"aprox.", "núm.", "ene.", "feb.", "mar.", "abr.", "jun.", "jul.",
		"ago.", "sept.", "oct.", "nov.", "dic.",
	},
	"uk": {
		"м.", "вул.", "р.", "рр.", "ст.", "т.д.", "т.п.", "ім.", "див.",
		"проф.", "акад.", "грн.", "тис.", "млн.", "млрд.",
	},
}
