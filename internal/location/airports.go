package location

// defaultAirports maps IATA airport codes to the city a traveler would name
// as their destination.
var defaultAirports = map[string]string{
	"JFK": "New York City",
	"LGA": "New York City",
	"EWR": "New York City",
	"LAX": "Los Angeles",
	"SFO": "San Francisco",
	"ORD": "Chicago",
	"MDW": "Chicago",
	"DFW": "Dallas",
	"DEN": "Denver",
	"SEA": "Seattle",
	"MIA": "Miami",
	"ATL": "Atlanta",
	"BOS": "Boston",
	"IAD": "Washington DC",
	"DCA": "Washington DC",
	"PHX": "Phoenix",
	"LAS": "Las Vegas",
	"SAN": "San Diego",
	"PDX": "Portland Oregon",
	"MSP": "Minneapolis",
	"DTW": "Detroit",
	"PHL": "Philadelphia",
	"CLT": "Charlotte",
	"MCO": "Orlando",
	"TPA": "Tampa",
	"AUS": "Austin Texas",
	"SLC": "Salt Lake City",
	"HNL": "Honolulu Hawaii",
	"CDG": "Paris",
	"ORY": "Paris",
	"LHR": "London",
	"LGW": "London",
	"STN": "London",
	"LCY": "London",
	"AMS": "Amsterdam",
	"FRA": "Frankfurt",
	"MUC": "Munich",
	"BER": "Berlin",
	"FCO": "Rome",
	"MXP": "Milan",
	"LIN": "Milan",
	"MAD": "Madrid",
	"BCN": "Barcelona",
	"ZRH": "Zurich",
	"GVA": "Geneva",
	"VIE": "Vienna",
	"CPH": "Copenhagen",
	"ARN": "Stockholm",
	"OSL": "Oslo",
	"HEL": "Helsinki",
	"DUB": "Dublin",
	"LIS": "Lisbon",
	"ATH": "Athens",
	"IST": "Istanbul",
	"PRG": "Prague",
	"BRU": "Brussels",
	"WAW": "Warsaw",
	"MAN": "Manchester UK",
	"EDI": "Edinburgh",
	"GLA": "Glasgow",
	"BHX": "Birmingham UK",
	"HND": "Tokyo",
	"NRT": "Tokyo",
	"KIX": "Osaka",
	"NGO": "Nagoya",
	"CTS": "Sapporo",
	"FUK": "Fukuoka",
	"HKG": "Hong Kong",
	"PEK": "Beijing",
	"PVG": "Shanghai",
	"SHA": "Shanghai",
	"ICN": "Seoul",
	"GMP": "Seoul",
	"SIN": "Singapore",
	"BKK": "Bangkok",
	"KUL": "Kuala Lumpur",
	"CGK": "Jakarta",
	"DEL": "New Delhi",
	"BOM": "Mumbai",
	"TPE": "Taipei",
	"MNL": "Manila",
	"SGN": "Ho Chi Minh City",
	"HAN": "Hanoi",
	"DXB": "Dubai",
	"AUH": "Abu Dhabi",
	"DOH": "Doha",
	"TLV": "Tel Aviv",
	"RUH": "Riyadh",
	"JED": "Jeddah",
	"SYD": "Sydney",
	"MEL": "Melbourne",
	"BNE": "Brisbane",
	"PER": "Perth Australia",
	"AKL": "Auckland",
	"WLG": "Wellington",
	"YYZ": "Toronto",
	"YVR": "Vancouver",
	"YUL": "Montreal",
	"YYC": "Calgary",
	"YOW": "Ottawa",
	"MEX": "Mexico City",
	"CUN": "Cancun",
	"GRU": "São Paulo",
	"GIG": "Rio de Janeiro",
	"EZE": "Buenos Aires",
	"SCL": "Santiago Chile",
	"BOG": "Bogotá",
	"LIM": "Lima",
	"PTY": "Panama City",
	"JNB": "Johannesburg",
	"CPT": "Cape Town",
	"CAI": "Cairo",
	"CMN": "Casablanca",
	"ADD": "Addis Ababa",
	"NBO": "Nairobi",
	"LOS": "Lagos",
}
