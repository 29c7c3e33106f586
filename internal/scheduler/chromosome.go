package scheduler

import "math/rand"

// randomInitChromosome 为每个课时随机选择一个合适的教室和一个时间
func randomInitChromosome(p *problem, rng *rand.Rand) *Chromosome {
	genes := make([]Gene, len(p.blocks))
	for i := range p.blocks {
		genes[i] = Gene{
			Block: i,
			Room:  randomRoom(p, i, rng),
			Slot:  rng.Intn(len(p.slots)),
		}
	}
	return &Chromosome{genes: genes}
}

func randomRoom(p *problem, block int, rng *rand.Rand) int {
	choices := p.roomChoices[p.blocks[block].course]
	return choices[rng.Intn(len(choices))]
}
